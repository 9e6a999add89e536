// internal/issues/reporter.go
package issues

import (
	"context"
	"fmt"
	"strings"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// Reporter posts a summary comment on an issue once its session completes.
type Reporter struct {
	fetcher *Fetcher
	dryRun  bool
}

// NewReporter creates a Reporter. In dry-run mode nothing is posted.
func NewReporter(fetcher *Fetcher, dryRun bool) *Reporter {
	return &Reporter{fetcher: fetcher, dryRun: dryRun}
}

// ReportCompletion comments on the issue with the pull requests opened for it.
// It returns the comment body, posted or not.
func (r *Reporter) ReportCompletion(ctx context.Context, repo string, issueNumber, iterations int, prs []domain.PullRequest) (string, error) {
	comment := BuildCompletionComment(iterations, prs)
	if r.dryRun {
		return comment, nil
	}
	if err := r.fetcher.PostComment(ctx, repo, issueNumber, comment); err != nil {
		return comment, fmt.Errorf("post comment: %w", err)
	}
	return comment, nil
}

// BuildCompletionComment creates a formatted comment for a completed session.
func BuildCompletionComment(iterations int, prs []domain.PullRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("✅ **Agent finished after %d iteration(s)**\n\n", iterations))

	if len(prs) > 0 {
		sb.WriteString("**Pull requests:**\n")
		for _, pr := range prs {
			if pr.Number > 0 {
				sb.WriteString(fmt.Sprintf("- #%d %s\n", pr.Number, pr.Title))
			} else {
				sb.WriteString(fmt.Sprintf("- %s (%s)\n", pr.Title, pr.HTMLURL))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n")
	sb.WriteString("*Implemented by issue-agent*\n")

	return sb.String()
}
