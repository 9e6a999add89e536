// internal/issues/fetcher.go
package issues

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// Runner executes a gh subcommand and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Fetcher reads issue context from GitHub via the gh CLI.
type Fetcher struct {
	owner      string
	baseBranch string
	run        Runner
}

// NewFetcher creates a Fetcher for the given owner. An empty token leaves gh
// to its own authentication.
func NewFetcher(owner, baseBranch, token string) *Fetcher {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &Fetcher{owner: owner, baseBranch: baseBranch, run: ghRunner(token)}
}

// WithRunner replaces the gh invocation, mainly for tests.
func (f *Fetcher) WithRunner(run Runner) *Fetcher {
	f.run = run
	return f
}

func ghRunner(token string) Runner {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, "gh", args...)
		if token != "" {
			cmd.Env = append(os.Environ(), "GH_TOKEN="+token)
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("gh %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
		}
		return out, nil
	}
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Comments []struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		Body string `json:"body"`
	} `json:"comments"`
}

func parseIssueFromJSON(data []byte) (*domain.GitHubIssue, []domain.Comment, error) {
	var gh ghIssue
	if err := json.Unmarshal(data, &gh); err != nil {
		return nil, nil, err
	}

	labels := make([]string, len(gh.Labels))
	for i, l := range gh.Labels {
		labels[i] = l.Name
	}

	comments := make([]domain.Comment, len(gh.Comments))
	for i, c := range gh.Comments {
		comments[i] = domain.Comment{Author: c.Author.Login, Body: c.Body}
	}

	return &domain.GitHubIssue{
		Number: gh.Number,
		Title:  gh.Title,
		Body:   gh.Body,
		Labels: labels,
	}, comments, nil
}

type ghTree struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
}

// parseTreeFromJSON returns the blob paths of a git/trees response
func parseTreeFromJSON(data []byte) ([]string, error) {
	var gh ghTree
	if err := json.Unmarshal(data, &gh); err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range gh.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

const extrasQuery = `query($owner:String!, $name:String!, $number:Int!) {
  repository(owner:$owner, name:$name) {
    issue(number:$number) {
      number
      title
      labels(first:10) { nodes { name } }
      milestone { title number }
      projectItems(first:10) { nodes { project { title } } }
    }
  }
}`

// parseExtrasFromJSON returns the "data" record of a GraphQL response,
// or an empty record when there is none.
func parseExtrasFromJSON(data []byte) map[string]any {
	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.Data == nil {
		return map[string]any{}
	}
	return resp.Data
}

// Fetch gathers the issue, its comments, the base branch tree and the GraphQL
// extras for one issue. The three requests run concurrently. A failed GraphQL
// request yields an empty extras record.
func (f *Fetcher) Fetch(ctx context.Context, repo string, issueNumber int) (*domain.IssueContext, error) {
	slug := f.owner + "/" + repo
	result := &domain.IssueContext{GraphQLExtras: map[string]any{}}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		out, err := f.run(gctx, "issue", "view", fmt.Sprintf("%d", issueNumber),
			"--repo", slug, "--json", "number,title,body,labels,comments")
		if err != nil {
			return err
		}
		issue, comments, err := parseIssueFromJSON(out)
		if err != nil {
			return fmt.Errorf("parse gh output: %w", err)
		}
		result.Issue = *issue
		result.Comments = comments
		return nil
	})

	g.Go(func() error {
		out, err := f.run(gctx, "api", fmt.Sprintf("repos/%s/git/trees/%s?recursive=1", slug, f.baseBranch))
		if err != nil {
			return err
		}
		tree, err := parseTreeFromJSON(out)
		if err != nil {
			return fmt.Errorf("parse tree: %w", err)
		}
		result.Tree = tree
		return nil
	})

	g.Go(func() error {
		out, err := f.run(gctx, "api", "graphql",
			"-f", "query="+extrasQuery,
			"-F", "owner="+f.owner,
			"-F", "name="+repo,
			"-F", fmt.Sprintf("number=%d", issueNumber))
		if err == nil {
			result.GraphQLExtras = parseExtrasFromJSON(out)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch %s#%d: %w", slug, issueNumber, err)
	}
	if result.Comments == nil {
		result.Comments = []domain.Comment{}
	}
	return result, nil
}

// PostComment posts a comment on an issue.
func (f *Fetcher) PostComment(ctx context.Context, repo string, issueNumber int, body string) error {
	_, err := f.run(ctx, "issue", "comment", fmt.Sprintf("%d", issueNumber),
		"--repo", f.owner+"/"+repo, "--body", body)
	return err
}
