package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/issue-agent/internal/diff"
	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/gitops"
	"github.com/hochfrequenz/issue-agent/internal/prbot"
)

type fakeWorkspace struct {
	calls     []string
	branchErr error
	stageFail string
	commitErr error
	pushFail  string
	panicOn   string
}

func (f *fakeWorkspace) enter(name string) {
	f.calls = append(f.calls, name)
	if f.panicOn == name {
		panic("boom in " + name)
	}
}

func (f *fakeWorkspace) CreateBranch(ctx context.Context, name string, dryRun bool) error {
	f.enter("branch")
	return f.branchErr
}

func (f *fakeWorkspace) StagePatch(ctx context.Context, diffText string, dryRun bool) (bool, string, error) {
	f.enter("stage")
	if f.stageFail != "" {
		return false, f.stageFail, nil
	}
	return true, "Patch applied and indexed.", nil
}

func (f *fakeWorkspace) CommitIndex(ctx context.Context, message string, who gitops.Identity, dryRun bool) (domain.CommitResult, error) {
	f.enter("commit")
	if f.commitErr != nil {
		return domain.CommitResult{}, f.commitErr
	}
	return domain.CommitResult{CommitID: "abcdef1234567890"}, nil
}

func (f *fakeWorkspace) PushBranch(ctx context.Context, name, remote string, dryRun bool) (bool, string, error) {
	f.enter("push")
	if f.pushFail != "" {
		return false, f.pushFail, nil
	}
	return true, "Pushed.", nil
}

type fakePublisher struct {
	title, body string
	err         error
	labels      []string
}

func (f *fakePublisher) CreatePR(ctx context.Context, branch, title, body, base string, dryRun bool) (*domain.PullRequest, error) {
	f.title, f.body = title, body
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PullRequest{Number: 9, HTMLURL: "https://example.test/pull/9", Title: title, Body: body, DryRun: dryRun}, nil
}

func (f *fakePublisher) AddLabels(ctx context.Context, prNumber int, labels []string) error {
	f.labels = labels
	return nil
}

func newRequest(dir string) domain.ChangeRequest {
	return domain.ChangeRequest{
		Path:          "notes.txt",
		NewContent:    "line 1\nline 2\n",
		CommitSummary: "Add notes",
		BranchName:    "agent/issue-42/abc1234",
		IssueNumber:   42,
	}
}

func TestApply_AllStages(t *testing.T) {
	dir := t.TempDir()
	ws := &fakeWorkspace{}
	pub := &fakePublisher{}
	p := New(ws, diff.NewGenerator(dir), pub, Options{AutoLabel: true})

	res := p.Apply(context.Background(), newRequest(dir))

	if res.Error != "" {
		t.Fatalf("Error = %q", res.Error)
	}
	if !res.Applied {
		t.Error("Applied = false, want true")
	}
	if got := strings.Join(ws.calls, ","); got != "branch,stage,commit,push" {
		t.Errorf("stages = %s", got)
	}
	if res.CommitID() != "abcdef1234567890" {
		t.Errorf("CommitID() = %q", res.CommitID())
	}
	if res.PushStatus != "Pushed." {
		t.Errorf("PushStatus = %q", res.PushStatus)
	}
	if res.PullRequest == nil || res.PullRequest.Number != 9 {
		t.Fatalf("PullRequest = %+v", res.PullRequest)
	}
	if pub.title != "[Issue #42] Add notes" {
		t.Errorf("PR title = %q", pub.title)
	}
	if !strings.Contains(pub.body, "issue #42") {
		t.Errorf("PR body = %q, want issue reference", pub.body)
	}
	if len(pub.labels) == 0 || pub.labels[0] != "agent" {
		t.Errorf("labels = %v, want agent label", pub.labels)
	}
	if !strings.Contains(res.Patch, "+line 1\n") {
		t.Errorf("Patch = %q", res.Patch)
	}
}

func TestApply_NoIssueNumber(t *testing.T) {
	pub := &fakePublisher{}
	p := New(&fakeWorkspace{}, diff.NewGenerator(t.TempDir()), pub, Options{})

	req := newRequest("")
	req.IssueNumber = 0
	p.Apply(context.Background(), req)

	if pub.title != "Add notes" {
		t.Errorf("PR title = %q, want bare summary", pub.title)
	}
	if pub.body != "Automated change by agent\n\n## Changes\nModified notes.txt (+2/-0)\n" {
		t.Errorf("PR body = %q", pub.body)
	}
}

func TestApply_NoChanges(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("line 1\nline 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ws := &fakeWorkspace{}
	p := New(ws, diff.NewGenerator(dir), &fakePublisher{}, Options{})

	res := p.Apply(context.Background(), newRequest(dir))

	if res.Error != NoChanges {
		t.Errorf("Error = %q, want %q", res.Error, NoChanges)
	}
	if res.Applied {
		t.Error("Applied = true, want false")
	}
	if got := strings.Join(ws.calls, ","); got != "branch" {
		t.Errorf("stages = %s, want only branch", got)
	}
}

func TestApply_StageFailure(t *testing.T) {
	ws := &fakeWorkspace{stageFail: "patch failed"}
	p := New(ws, diff.NewGenerator(t.TempDir()), &fakePublisher{}, Options{})

	res := p.Apply(context.Background(), newRequest(""))

	if res.Applied {
		t.Error("Applied = true, want false")
	}
	if !strings.Contains(res.Error, "git apply failed: patch failed") {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Patch == "" {
		t.Error("computed patch should be kept on stage failure")
	}
	if got := strings.Join(ws.calls, ","); got != "branch,stage" {
		t.Errorf("stages = %s", got)
	}
}

func TestApply_BranchFailure(t *testing.T) {
	ws := &fakeWorkspace{branchErr: gitops.ErrBranchCreate}
	p := New(ws, diff.NewGenerator(t.TempDir()), &fakePublisher{}, Options{})

	res := p.Apply(context.Background(), newRequest(""))

	if res.Applied || !strings.Contains(res.Error, "branch creation failed") {
		t.Errorf("res = %+v", res)
	}
	if res.Patch != "" {
		t.Error("diff should not run after branch failure")
	}
}

func TestApply_PushFailureKeepsCommit(t *testing.T) {
	ws := &fakeWorkspace{pushFail: "remote rejected"}
	pub := &fakePublisher{}
	p := New(ws, diff.NewGenerator(t.TempDir()), pub, Options{})

	res := p.Apply(context.Background(), newRequest(""))

	if !res.Applied {
		t.Error("Applied = false, want true (commit happened)")
	}
	if res.Error != "Push failed: remote rejected" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.CommitID() == "" {
		t.Error("commit ID should be kept after push failure")
	}
	if res.PullRequest != nil || pub.title != "" {
		t.Error("publish must not run after push failure")
	}
}

func TestApply_PublishFailure(t *testing.T) {
	pub := &fakePublisher{err: prbot.ErrUnauthorized}
	p := New(&fakeWorkspace{}, diff.NewGenerator(t.TempDir()), pub, Options{})

	res := p.Apply(context.Background(), newRequest(""))

	if !strings.Contains(res.Error, "unauthorized") {
		t.Errorf("Error = %q", res.Error)
	}
	if res.PushStatus != "Pushed." {
		t.Errorf("PushStatus = %q, want earlier stages kept", res.PushStatus)
	}
}

func TestApply_CommitError(t *testing.T) {
	ws := &fakeWorkspace{commitErr: errors.New("git commit: nothing to commit")}
	p := New(ws, diff.NewGenerator(t.TempDir()), &fakePublisher{}, Options{})

	res := p.Apply(context.Background(), newRequest(""))

	if res.Applied {
		t.Error("Applied = true, want false")
	}
	if res.Error != "git commit: nothing to commit" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestApply_PanicBecomesError(t *testing.T) {
	ws := &fakeWorkspace{panicOn: "stage"}
	p := New(ws, diff.NewGenerator(t.TempDir()), &fakePublisher{}, Options{})

	res := p.Apply(context.Background(), newRequest(""))

	if res.Error != "boom in stage" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Patch == "" {
		t.Error("patch computed before the panic should be kept")
	}
}

func TestApply_DryRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	// the workspace points at a directory that is not a repository: any real
	// git call would fail
	ws := gitops.NewWorkspace(filepath.Join(dir, "not-a-repo"), "origin", "main")
	pub := prbot.NewPRBot(prbot.Options{
		APIURL: "http://127.0.0.1:1",
		WebURL: "https://github.com",
		Owner:  "davidgraymi",
		Repo:   "widgets",
	})
	p := New(ws, diff.NewGenerator(dir), pub, Options{AutoLabel: true})

	req := newRequest(dir)
	req.DryRun = true
	res := p.Apply(context.Background(), req)

	if res.Error != "" {
		t.Fatalf("Error = %q", res.Error)
	}
	if !res.DryRun || !res.Applied {
		t.Errorf("DryRun/Applied = %v/%v, want true/true", res.DryRun, res.Applied)
	}
	if res.Commit == nil || !res.Commit.DryRun || res.Commit.CommitID != "" {
		t.Errorf("Commit = %+v, want dry-run marker", res.Commit)
	}
	if !strings.Contains(res.PushStatus, "Dry run") {
		t.Errorf("PushStatus = %q", res.PushStatus)
	}
	if res.PullRequest == nil || !res.PullRequest.DryRun {
		t.Fatalf("PullRequest = %+v", res.PullRequest)
	}
	if !strings.Contains(res.PullRequest.HTMLURL, "davidgraymi/widgets") {
		t.Errorf("HTMLURL = %q", res.PullRequest.HTMLURL)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); !os.IsNotExist(err) {
		t.Error("dry run must not write the proposed file")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %s", args, out)
	}
	return strings.TrimSpace(string(out))
}

func TestApply_LiveEndToEnd(t *testing.T) {
	remote := t.TempDir()
	runGit(t, remote, "init", "--bare", "-b", "main")

	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("line 1\nline 2\n"), 0644)
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")
	runGit(t, dir, "remote", "add", "origin", remote)
	runGit(t, dir, "push", "-u", "origin", "main")

	var gotHead string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Head string `json:"head"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotHead = req.Head
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 3, "html_url": "https://github.com/davidgraymi/widgets/pull/3", "title": "t", "body": "b", "head": {"ref": "x"}, "base": {"ref": "main"}}`))
	}))
	defer server.Close()

	pub := prbot.NewPRBot(prbot.Options{APIURL: server.URL, Owner: "davidgraymi", Repo: "widgets"})
	p := New(gitops.NewWorkspace(dir, "origin", "main"), diff.NewGenerator(dir), pub, Options{
		Identity: gitops.Identity{Name: "Agent", Email: "agent@example.com"},
	})

	req := newRequest(dir)
	req.NewContent = "line 1\nline 3\n"
	res := p.Apply(context.Background(), req)

	if res.Error != "" {
		t.Fatalf("Error = %q", res.Error)
	}
	if res.CommitID() != runGit(t, dir, "rev-parse", "HEAD") {
		t.Errorf("CommitID() = %q, want HEAD", res.CommitID())
	}
	if remoteHead := runGit(t, remote, "rev-parse", req.BranchName); remoteHead != res.CommitID() {
		t.Errorf("remote branch at %q, want %q", remoteHead, res.CommitID())
	}
	if gotHead != req.BranchName {
		t.Errorf("PR head = %q, want %q", gotHead, req.BranchName)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if string(data) != "line 1\nline 3\n" {
		t.Errorf("notes.txt = %q", data)
	}
}
