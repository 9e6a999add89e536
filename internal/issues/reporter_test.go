// internal/issues/reporter_test.go
package issues

import (
	"context"
	"strings"
	"testing"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

func TestBuildCompletionComment(t *testing.T) {
	comment := BuildCompletionComment(3, []domain.PullRequest{
		{Number: 12, Title: "[Issue #7] Add retry logic"},
		{Title: "Dry PR", HTMLURL: "https://github.com/acme/widgets/pull/fake"},
	})

	tests := []string{"3 iteration(s)", "#12 [Issue #7] Add retry logic", "pull/fake", "issue-agent"}
	for _, want := range tests {
		if !strings.Contains(comment, want) {
			t.Errorf("comment missing %q", want)
		}
	}
}

func TestBuildCompletionComment_NoPRs(t *testing.T) {
	comment := BuildCompletionComment(1, nil)

	// Should not contain a PR section when nothing was opened
	if strings.Contains(comment, "Pull requests") {
		t.Error("comment should not have Pull requests section for empty list")
	}
}

func TestReportCompletion_DryRunDoesNotPost(t *testing.T) {
	gh := &fakeGH{}
	r := NewReporter(NewFetcher("acme", "", "").WithRunner(gh.run), true)

	comment, err := r.ReportCompletion(context.Background(), "widgets", 7, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if comment == "" {
		t.Error("expected comment body")
	}
	if len(gh.calls) != 0 {
		t.Errorf("dry run invoked gh: %v", gh.calls)
	}
}

func TestReportCompletion_Live(t *testing.T) {
	var got []string
	f := NewFetcher("acme", "", "").WithRunner(func(_ context.Context, args ...string) ([]byte, error) {
		got = args
		return nil, nil
	})

	if _, err := NewReporter(f, false).ReportCompletion(context.Background(), "widgets", 7, 2, nil); err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(got, " ")
	if !strings.HasPrefix(joined, "issue comment 7 --repo acme/widgets --body") {
		t.Errorf("gh args = %v", got)
	}
}
