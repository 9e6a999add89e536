// Package session persists the resumable state of one repo/issue task as a
// single JSON document.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// FileStore keeps the session in one JSON file, overwritten wholesale on every save
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the session file location
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the persisted session, or nil when nothing has been saved yet
func (s *FileStore) Load() (*domain.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", s.path, err)
	}
	if sess.History == nil {
		sess.History = []domain.IterationRecord{}
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	return &sess, nil
}

// Save replaces the persisted session with sess. The file is written next to
// its destination and renamed into place.
func (s *FileStore) Save(sess *domain.Session) error {
	doc := *sess
	if doc.History == nil {
		doc.History = []domain.IterationRecord{}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing session: %w", err)
	}
	return nil
}
