package prbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testBot(apiURL string) *PRBot {
	return NewPRBot(Options{
		APIURL:     apiURL,
		WebURL:     "https://github.com",
		Owner:      "davidgraymi",
		Repo:       "widgets",
		Token:      "ghp_test",
		BaseBranch: "main",
	})
}

func TestBuildPRTitle(t *testing.T) {
	if got := BuildPRTitle(42, "Fix parser"); got != "[Issue #42] Fix parser" {
		t.Errorf("BuildPRTitle(42) = %q", got)
	}
	if got := BuildPRTitle(0, "Fix parser"); got != "Fix parser" {
		t.Errorf("BuildPRTitle(0) = %q", got)
	}
}

func TestBuildPRBody(t *testing.T) {
	patch := "--- a/main.go\n+++ b/main.go\n@@ -1 +1 @@\n-old\n+new\n"

	body := BuildPRBody(42, patch)
	if !strings.HasPrefix(body, "Automated change by agent for issue #42") {
		t.Errorf("body should reference the issue, got %q", body)
	}
	if !strings.Contains(body, "Modified main.go (+1/-1)") {
		t.Errorf("body should summarise changes, got %q", body)
	}

	bare := BuildPRBody(0, "")
	if bare != "Automated change by agent" {
		t.Errorf("BuildPRBody(0) = %q", bare)
	}
}

func TestCreatePR_DryRun(t *testing.T) {
	bot := testBot("http://127.0.0.1:1") // never contacted

	pr, err := bot.CreatePR(context.Background(), "b", "t", "x", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if !pr.DryRun {
		t.Error("DryRun = false, want true")
	}
	if pr.Title != "t" || pr.Body != "x" {
		t.Errorf("pr = %+v, want title t body x", pr)
	}
	if !strings.Contains(pr.HTMLURL, "davidgraymi/widgets") {
		t.Errorf("HTMLURL = %q, want repository identity", pr.HTMLURL)
	}
	if pr.Base != "main" || pr.Head != "b" {
		t.Errorf("head/base = %q/%q", pr.Head, pr.Base)
	}
}

func TestCreatePR_Live(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/repos/davidgraymi/widgets/pulls" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token ghp_test" {
			t.Errorf("Authorization = %q", got)
		}

		var req createPRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Title != "Test PR" || req.Head != "agent/issue-1/abc" || req.Base != "develop" {
			t.Errorf("request = %+v", req)
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 7, "html_url": "http://fakepr.url", "title": "pr title", "body": "b",
			"head": {"ref": "agent/issue-1/abc"}, "base": {"ref": "develop"}}`))
	}))
	defer server.Close()

	pr, err := testBot(server.URL).CreatePR(context.Background(), "agent/issue-1/abc", "Test PR", "PR body", "develop", false)
	if err != nil {
		t.Fatal(err)
	}
	if pr.HTMLURL != "http://fakepr.url" || pr.Title != "pr title" || pr.Number != 7 {
		t.Errorf("pr = %+v", pr)
	}
	if pr.DryRun {
		t.Error("live PR marked as dry run")
	}
	if pr.Head != "agent/issue-1/abc" || pr.Base != "develop" {
		t.Errorf("head/base = %q/%q", pr.Head, pr.Base)
	}
}

func TestCreatePR_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Bad credentials"}`))
	}))
	defer server.Close()

	_, err := testBot(server.URL).CreatePR(context.Background(), "b", "t", "x", "", false)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if !strings.Contains(err.Error(), "Bad credentials") {
		t.Errorf("err = %v, want API message", err)
	}
}

func TestCreatePR_ValidationFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "Validation Failed"}`))
	}))
	defer server.Close()

	_, err := testBot(server.URL).CreatePR(context.Background(), "b", "t", "x", "", false)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want plain API error", err)
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("err = %v, want status code", err)
	}
}

func TestAddLabels(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/davidgraymi/widgets/issues/7/labels" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Labels []string `json:"labels"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		got = req.Labels
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	if err := testBot(server.URL).AddLabels(context.Background(), 7, []string{"agent", "security"}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != "security" {
		t.Errorf("labels sent = %v", got)
	}
}

func TestAnalyzeDiff_Security(t *testing.T) {
	diff := `
--- a/auth/login.go
+++ b/auth/login.go
+func validatePassword(password string) bool {
+    return bcrypt.CompareHashAndPassword(hash, []byte(password))
+}
`
	category := AnalyzeDiff(diff)
	if category != CategorySecurity {
		t.Errorf("Category = %s, want security", category)
	}
}

func TestAnalyzeDiff_Architecture(t *testing.T) {
	diff := `
--- a/go.mod
+++ b/go.mod
+require github.com/newdep/pkg v1.0.0
`
	category := AnalyzeDiff(diff)
	if category != CategoryArchitecture {
		t.Errorf("Category = %s, want architecture", category)
	}
}

func TestAnalyzeDiff_Migrations(t *testing.T) {
	diff := `
--- a/migrations/001_create_users.sql
+++ b/migrations/001_create_users.sql
+CREATE TABLE users (
+    id SERIAL PRIMARY KEY
+);
`
	category := AnalyzeDiff(diff)
	if category != CategoryMigrations {
		t.Errorf("Category = %s, want migrations", category)
	}
}

func TestAnalyzeDiff_Routine(t *testing.T) {
	diff := `
--- a/utils/format.go
+++ b/utils/format.go
+func FormatDate(t time.Time) string {
+    return t.Format("2006-01-02")
+}
`
	category := AnalyzeDiff(diff)
	if category != CategoryRoutine {
		t.Errorf("Category = %s, want routine", category)
	}
}

func TestGetLabels(t *testing.T) {
	tests := []struct {
		category Category
		want     int
	}{
		{CategoryRoutine, 1},
		{CategorySecurity, 3},
		{CategoryArchitecture, 3},
		{CategoryMigrations, 3},
	}

	for _, tt := range tests {
		got := GetLabels(tt.category)
		if len(got) != tt.want || got[0] != "agent" {
			t.Errorf("GetLabels(%s) = %v", tt.category, got)
		}
	}
}

func TestChangedFiles(t *testing.T) {
	diff := "--- a/one.go\n+++ b/one.go\n@@ -1 +1 @@\n-a\n+b\n--- a/two.go\n+++ b/two.go\n"
	files := ChangedFiles(diff)
	if len(files) != 2 || files[0] != "one.go" || files[1] != "two.go" {
		t.Errorf("ChangedFiles() = %v", files)
	}
	if got := ExtractChangeSummary(""); got != "Changes made" {
		t.Errorf("ExtractChangeSummary(\"\") = %q", got)
	}
}
