package domain

// ChangeRequest asks the change pipeline to land new content for one path.
type ChangeRequest struct {
	Path          string
	NewContent    string
	CommitSummary string
	BranchName    string
	IssueNumber   int // zero when the change is not tied to an issue
	DryRun        bool
}

// HasIssue reports whether the request references an issue.
func (r ChangeRequest) HasIssue() bool {
	return r.IssueNumber > 0
}

// CommitResult is the outcome of committing the index. Live commits carry a
// CommitID; dry runs carry only a Message.
type CommitResult struct {
	DryRun   bool   `json:"dry_run"`
	CommitID string `json:"commit_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PullRequest is the hosting platform's view of an opened pull request.
// Dry runs produce the same shape with DryRun set.
type PullRequest struct {
	Number  int    `json:"number,omitempty"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Head    string `json:"head,omitempty"`
	Base    string `json:"base,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// ChangeResult is the pipeline's report. Either Error is set and the pipeline
// stopped at that stage, or Applied is true.
type ChangeResult struct {
	Applied     bool          `json:"applied"`
	Branch      string        `json:"branch,omitempty"`
	Patch       string        `json:"patch,omitempty"`
	Commit      *CommitResult `json:"commit,omitempty"`
	PushStatus  string        `json:"push,omitempty"`
	PullRequest *PullRequest  `json:"pr,omitempty"`
	Error       string        `json:"error,omitempty"`
	DryRun      bool          `json:"dry_run"`
}

// CommitID returns the commit identifier, or "" for dry runs and failures.
func (r *ChangeResult) CommitID() string {
	if r.Commit == nil {
		return ""
	}
	return r.Commit.CommitID
}

// Failed reports whether the pipeline stopped with an error.
func (r *ChangeResult) Failed() bool {
	return r.Error != ""
}
