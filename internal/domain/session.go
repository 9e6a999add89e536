package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// sessionNamespace is a fixed UUID namespace for deriving session IDs.
// The same repo/issue pair always yields the same ID so resumed runs line up
// in the ledger.
var sessionNamespace = uuid.MustParse("3f0c3b8e-7a52-4c1e-9d1f-6a4b2e8c0d17")

// IterationRecord is the outcome of one controller iteration.
type IterationRecord struct {
	Iteration int    `json:"iteration"`
	Result    string `json:"result"`
}

// Session is the durable record of one repo/issue task.
type Session struct {
	RepoName      string            `json:"repo_name"`
	IssueNumber   int               `json:"issue_number"`
	History       []IterationRecord `json:"history"`
	LastIteration int               `json:"last_iteration"`
	Metadata      map[string]any    `json:"metadata"`
}

// NewSession returns an empty session for the given task.
func NewSession(repoName string, issueNumber int) *Session {
	return &Session{
		RepoName:    repoName,
		IssueNumber: issueNumber,
		History:     []IterationRecord{},
		Metadata:    map[string]any{"session_id": SessionID(repoName, issueNumber)},
	}
}

// Matches reports whether the session belongs to the given task.
func (s *Session) Matches(repoName string, issueNumber int) bool {
	return s != nil && s.RepoName == repoName && s.IssueNumber == issueNumber
}

// Append records an iteration outcome and advances LastIteration past it.
func (s *Session) Append(iteration int, result string) {
	s.History = append(s.History, IterationRecord{Iteration: iteration, Result: result})
	s.LastIteration = iteration + 1
}

// Key is the human-readable task identity, e.g. "my-repo#42".
func (s *Session) Key() string {
	return fmt.Sprintf("%s#%d", s.RepoName, s.IssueNumber)
}

// SessionID returns the deterministic ID for a repo/issue pair.
func SessionID(repoName string, issueNumber int) string {
	return uuid.NewSHA1(sessionNamespace, []byte(fmt.Sprintf("%s#%d", repoName, issueNumber))).String()
}

// TerminalState is how an iteration loop ended.
type TerminalState string

const (
	StateComplete  TerminalState = "complete"
	StateTimedOut  TerminalState = "timed_out"
	StateExhausted TerminalState = "exhausted"
)
