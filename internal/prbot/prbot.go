package prbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// ErrUnauthorized is returned when the API rejects the credential
var ErrUnauthorized = errors.New("github: unauthorized")

// Options configures a PRBot for one repository
type Options struct {
	APIURL     string // e.g. https://api.github.com
	WebURL     string // e.g. https://github.com, used for dry-run URLs
	Owner      string
	Repo       string
	Token      string
	BaseBranch string
}

// PRBot opens pull requests through the GitHub REST API
type PRBot struct {
	opts   Options
	client *http.Client
}

// NewPRBot creates a new PRBot
func NewPRBot(opts Options) *PRBot {
	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	opts.WebURL = strings.TrimRight(opts.WebURL, "/")
	return &PRBot{
		opts: opts,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Repository returns "owner/repo"
func (p *PRBot) Repository() string {
	return p.opts.Owner + "/" + p.opts.Repo
}

// BuildPRTitle returns "[Issue #n] summary", or the bare summary without an issue
func BuildPRTitle(issueNumber int, summary string) string {
	if issueNumber <= 0 {
		return summary
	}
	return fmt.Sprintf("[Issue #%d] %s", issueNumber, summary)
}

// BuildPRBody constructs the PR body
func BuildPRBody(issueNumber int, patch string) string {
	var b strings.Builder
	if issueNumber > 0 {
		fmt.Fprintf(&b, "Automated change by agent for issue #%d", issueNumber)
	} else {
		b.WriteString("Automated change by agent")
	}
	if patch != "" {
		fmt.Fprintf(&b, "\n\n## Changes\n%s\n", ExtractChangeSummary(patch))
	}
	if issueNumber > 0 {
		fmt.Fprintf(&b, "\nRefs #%d\n", issueNumber)
	}
	return b.String()
}

type createPRRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

type ghPull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// CreatePR opens a pull request from branch into base (the configured base
// branch when empty). Dry runs return a placeholder of the same shape.
func (p *PRBot) CreatePR(ctx context.Context, branch, title, body, base string, dryRun bool) (*domain.PullRequest, error) {
	if base == "" {
		base = p.opts.BaseBranch
	}
	if dryRun {
		return &domain.PullRequest{
			HTMLURL: fmt.Sprintf("%s/%s/pull/fake", p.opts.WebURL, p.Repository()),
			Title:   title,
			Body:    body,
			Head:    branch,
			Base:    base,
			DryRun:  true,
		}, nil
	}

	var gh ghPull
	err := p.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/pulls", p.Repository()),
		createPRRequest{Title: title, Head: branch, Base: base, Body: body}, &gh)
	if err != nil {
		return nil, err
	}

	return &domain.PullRequest{
		Number:  gh.Number,
		HTMLURL: gh.HTMLURL,
		Title:   gh.Title,
		Body:    gh.Body,
		Head:    gh.Head.Ref,
		Base:    gh.Base.Ref,
	}, nil
}

// AddLabels adds labels to a PR
func (p *PRBot) AddLabels(ctx context.Context, prNumber int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	payload := struct {
		Labels []string `json:"labels"`
	}{labels}
	return p.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues/%d/labels", p.Repository(), prNumber), payload, nil)
}

func (p *PRBot) do(ctx context.Context, method, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, p.opts.APIURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if p.opts.Token != "" {
		req.Header.Set("Authorization", "token "+p.opts.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnauthorized, method, path, resp.StatusCode, apiMessage(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, apiMessage(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// apiMessage extracts GitHub's error message, falling back to the raw body
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
