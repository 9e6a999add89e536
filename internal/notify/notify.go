// Package notify reports terminal session states to people.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title     string
	Message   string
	Type      NotificationType
	SessionID string   // Optional session reference
	PRURLs    []string // Optional PR URLs
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(ctx context.Context, n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(context.Context, Notification) error { return nil }

// ForTerminalState builds the notification for a session that stopped
func ForTerminalState(sess *domain.Session, state domain.TerminalState, prs []domain.PullRequest) Notification {
	n := Notification{
		SessionID: sess.Key(),
	}

	switch state {
	case domain.StateComplete:
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Issue #%d done", sess.IssueNumber)
	case domain.StateTimedOut:
		n.Type = NotifyWarning
		n.Title = fmt.Sprintf("Issue #%d timed out", sess.IssueNumber)
	default:
		n.Type = NotifyWarning
		n.Title = fmt.Sprintf("Issue #%d ran out of iterations", sess.IssueNumber)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d iteration(s), state %s", sess.RepoName, len(sess.History), state)
	for _, pr := range prs {
		n.PRURLs = append(n.PRURLs, pr.HTMLURL)
	}
	if len(prs) > 0 {
		fmt.Fprintf(&b, ", %d pull request(s)", len(prs))
	}
	n.Message = b.String()
	return n
}
