package ledger

const schema = `
CREATE TABLE IF NOT EXISTS iterations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    repo TEXT NOT NULL,
    issue INTEGER NOT NULL,
    iteration INTEGER NOT NULL,
    result TEXT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_iterations_task ON iterations(repo, issue);

CREATE TABLE IF NOT EXISTS changes (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    repo TEXT NOT NULL,
    issue INTEGER NOT NULL,
    path TEXT NOT NULL,
    branch TEXT NOT NULL,
    summary TEXT,
    applied BOOLEAN DEFAULT FALSE,
    dry_run BOOLEAN DEFAULT FALSE,
    commit_id TEXT,
    push_status TEXT,
    pr_number INTEGER,
    pr_url TEXT,
    error TEXT,
    patch TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_changes_task ON changes(repo, issue);
`
