// Package diff produces unified diffs between a file on disk and proposed
// replacement content. Binary content is not supported. Line endings are
// compared exactly as stored.
package diff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const noNewlineMarker = "\\ No newline at end of file\n"

// Generator diffs proposed content against files under a repository root
type Generator struct {
	repoRoot string
}

// NewGenerator creates a Generator rooted at repoRoot
func NewGenerator(repoRoot string) *Generator {
	return &Generator{repoRoot: repoRoot}
}

// Unified returns the diff from the current content of path (empty when the
// file does not exist) to newContent, labelled a/<path> and b/<path>.
// Identical content yields "".
func (g *Generator) Unified(path, newContent string) (string, error) {
	old, err := g.current(path)
	if err != nil {
		return "", err
	}
	return Unified(path, old, newContent)
}

func (g *Generator) current(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(g.repoRoot, path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// Unified diffs two in-memory versions of path.
func Unified(path, oldContent, newContent string) (string, error) {
	if oldContent == newContent {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        splitLines(oldContent),
		B:        splitLines(newContent),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", path, err)
	}
	return out, nil
}

// splitLines keeps line terminators. A final line without one gets the
// marker patch tools expect, so it never compares equal to its terminated form.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	lines[len(lines)-1] += "\n" + noNewlineMarker
	return lines
}
