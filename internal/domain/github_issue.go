package domain

import "fmt"

// GitHubIssue is an issue as seen by the reasoning prompt
type GitHubIssue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Comment is one comment on an issue
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// IssueContext is everything the issue tracker returns for one issue
type IssueContext struct {
	Issue         GitHubIssue    `json:"issue"`
	Comments      []Comment      `json:"comments"`
	Tree          []string       `json:"tree"`
	GraphQLExtras map[string]any `json:"graphql"`
}

// TaskGroup returns the directory-like group used for branch names of this issue,
// e.g. "issue-42".
func (i *GitHubIssue) TaskGroup() string {
	return fmt.Sprintf("issue-%d", i.Number)
}

// HasLabel reports whether the issue carries the given label.
func (i *GitHubIssue) HasLabel(target string) bool {
	for _, l := range i.Labels {
		if l == target {
			return true
		}
	}
	return false
}
