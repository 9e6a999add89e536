// Package ledger keeps an append-only SQLite audit trail of iterations and
// change pipeline results. The session file is the resume point; the ledger
// is for inspection only.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/issue-agent/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed ledger persistence
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the ledger at dbPath. ":memory:" is accepted for tests.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared and serialises writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Iteration is one recorded controller iteration
type Iteration struct {
	SessionID  string
	Repo       string
	Issue      int
	Iteration  int
	Result     string
	RecordedAt time.Time
}

// Change is one recorded change pipeline invocation
type Change struct {
	ID        string
	SessionID string
	Repo      string
	Issue     int
	Path      string
	Branch    string
	Summary   string
	Applied   bool
	DryRun    bool
	CommitID  string
	Push      string
	PRNumber  int
	PRURL     string
	Error     string
	Patch     string
	CreatedAt time.Time
}

// NewChange flattens a pipeline request/result pair into a ledger row
func NewChange(repo string, req domain.ChangeRequest, res domain.ChangeResult) *Change {
	c := &Change{
		ID:        uuid.NewString(),
		SessionID: domain.SessionID(repo, req.IssueNumber),
		Repo:      repo,
		Issue:     req.IssueNumber,
		Path:      req.Path,
		Branch:    req.BranchName,
		Summary:   req.CommitSummary,
		Applied:   res.Applied,
		DryRun:    res.DryRun,
		CommitID:  res.CommitID(),
		Push:      res.PushStatus,
		Error:     res.Error,
		Patch:     res.Patch,
		CreatedAt: time.Now(),
	}
	if res.PullRequest != nil {
		c.PRNumber = res.PullRequest.Number
		c.PRURL = res.PullRequest.HTMLURL
	}
	return c
}

// RecordIteration appends an iteration
func (s *Store) RecordIteration(it *Iteration) error {
	if it.RecordedAt.IsZero() {
		it.RecordedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO iterations (session_id, repo, issue, iteration, result, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, it.SessionID, it.Repo, it.Issue, it.Iteration, it.Result, it.RecordedAt)
	return err
}

// RecordChange appends a change
func (s *Store) RecordChange(c *Change) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO changes (id, session_id, repo, issue, path, branch, summary, applied, dry_run, commit_id, push_status, pr_number, pr_url, error, patch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.SessionID,
		c.Repo,
		c.Issue,
		c.Path,
		c.Branch,
		c.Summary,
		c.Applied,
		c.DryRun,
		c.CommitID,
		c.Push,
		c.PRNumber,
		c.PRURL,
		c.Error,
		c.Patch,
		c.CreatedAt,
	)
	return err
}

// ListOptions specifies filters for listing ledger rows
type ListOptions struct {
	Repo  string
	Issue int
	Limit int
}

func (o ListOptions) where(query string) (string, []interface{}) {
	var args []interface{}
	query += " WHERE 1=1"
	if o.Repo != "" {
		query += " AND repo = ?"
		args = append(args, o.Repo)
	}
	if o.Issue > 0 {
		query += " AND issue = ?"
		args = append(args, o.Issue)
	}
	return query, args
}

// ListChanges returns changes matching opts, newest first
func (s *Store) ListChanges(opts ListOptions) ([]*Change, error) {
	query, args := opts.where(`SELECT id, session_id, repo, issue, path, branch, summary, applied, dry_run, commit_id, push_status, pr_number, pr_url, error, patch, created_at FROM changes`)
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*Change
	for rows.Next() {
		var c Change
		var summary, commitID, push, prURL, errMsg, patch sql.NullString
		var prNumber sql.NullInt64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Repo, &c.Issue, &c.Path, &c.Branch, &summary, &c.Applied, &c.DryRun,
			&commitID, &push, &prNumber, &prURL, &errMsg, &patch, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Summary = summary.String
		c.CommitID = commitID.String
		c.Push = push.String
		c.PRNumber = int(prNumber.Int64)
		c.PRURL = prURL.String
		c.Error = errMsg.String
		c.Patch = patch.String
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

// ListIterations returns iterations matching opts in execution order
func (s *Store) ListIterations(opts ListOptions) ([]*Iteration, error) {
	query, args := opts.where(`SELECT session_id, repo, issue, iteration, result, recorded_at FROM iterations`)
	query += " ORDER BY id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var its []*Iteration
	for rows.Next() {
		var it Iteration
		var result sql.NullString
		if err := rows.Scan(&it.SessionID, &it.Repo, &it.Issue, &it.Iteration, &result, &it.RecordedAt); err != nil {
			return nil, err
		}
		it.Result = result.String
		its = append(its, &it)
	}
	return its, rows.Err()
}
