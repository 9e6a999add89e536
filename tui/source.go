package tui

import (
	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
)

// SessionLoader reads the persisted session
type SessionLoader interface {
	Load() (*domain.Session, error)
}

// StoreSource reads from the session file and the ledger for one repo/issue
type StoreSource struct {
	Sessions SessionLoader
	Ledger   *ledger.Store // optional
	Repo     string
	Issue    int
}

// LoadSession returns the persisted session
func (s StoreSource) LoadSession() (*domain.Session, error) {
	return s.Sessions.Load()
}

// ListIterations returns recorded iterations of the task
func (s StoreSource) ListIterations() ([]*ledger.Iteration, error) {
	if s.Ledger == nil {
		return nil, nil
	}
	return s.Ledger.ListIterations(ledger.ListOptions{Repo: s.Repo, Issue: s.Issue})
}

// ListChanges returns recorded changes of the task, newest first
func (s StoreSource) ListChanges() ([]*ledger.Change, error) {
	if s.Ledger == nil {
		return nil, nil
	}
	return s.Ledger.ListChanges(ledger.ListOptions{Repo: s.Repo, Issue: s.Issue})
}
