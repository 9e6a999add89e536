//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TempDBPath creates a temporary ledger path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "ledger.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml")
}

// writeConfig writes a config pointing at repoRoot and dbPath
func writeConfig(t *testing.T, repoRoot, dbPath string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `dry_run = true

[general]
repo_root = "` + repoRoot + `"
ledger_path = "` + dbPath + `"

[llm]
provider = "ollama"

[notifications]
desktop = false
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

// setupRepo creates a repository with one commit on main, pushed to a bare
// remote. It returns the working tree and the remote.
func setupRepo(t *testing.T) (dir, remote string) {
	t.Helper()
	remote = t.TempDir()
	runGit(t, remote, "init", "--bare", "-b", "main")

	dir = t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "calc.go"), []byte("package calc\n\nfunc Add(a, b int) int { return a - b }\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")
	runGit(t, dir, "remote", "add", "origin", remote)
	runGit(t, dir, "push", "-u", "origin", "main")
	return dir, remote
}
