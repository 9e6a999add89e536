package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(context.Background(), Notification{
		Title:     "Test",
		Message:   "Test message",
		Type:      NotifySuccess,
		SessionID: "widgets#7",
		PRURLs:    []string{"https://github.com/acme/widgets/pull/3"},
	})
	if err != nil {
		t.Errorf("Send failed: %v", err)
	}

	if got.Text != "Test" || len(got.Attachments) != 1 {
		t.Fatalf("message = %+v", got)
	}
	att := got.Attachments[0]
	if att.Color != "good" || att.Title != "widgets#7" {
		t.Errorf("attachment = %+v", att)
	}
	if !strings.Contains(att.Text, "pull/3") {
		t.Errorf("attachment text = %q, want PR URL", att.Text)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(context.Background(), Notification{Title: "x"}); err == nil {
		t.Error("expected error for 500")
	}
}

func TestSlackNotifier_Disabled(t *testing.T) {
	if err := NewSlackNotifier("").Send(context.Background(), Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2, NewDesktopNotifier(false))
	multi.Send(context.Background(), Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestForTerminalState(t *testing.T) {
	sess := domain.NewSession("widgets", 7)
	sess.Append(0, "looking")
	sess.Append(1, "TASK_COMPLETE")

	n := ForTerminalState(sess, domain.StateComplete, []domain.PullRequest{{HTMLURL: "u1"}})
	if n.Type != NotifySuccess {
		t.Errorf("Type = %v, want success", n.Type)
	}
	if n.Title != "Issue #7 done" {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "2 iteration(s)") || !strings.Contains(n.Message, "1 pull request(s)") {
		t.Errorf("Message = %q", n.Message)
	}
	if len(n.PRURLs) != 1 {
		t.Errorf("PRURLs = %v", n.PRURLs)
	}

	if got := ForTerminalState(sess, domain.StateTimedOut, nil); got.Type != NotifyWarning || !strings.Contains(got.Title, "timed out") {
		t.Errorf("timed out notification = %+v", got)
	}
	if got := ForTerminalState(sess, domain.StateExhausted, nil); !strings.Contains(got.Title, "ran out of iterations") {
		t.Errorf("exhausted notification = %+v", got)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(_ context.Context, n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
