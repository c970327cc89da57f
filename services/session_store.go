package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SessionStore persists the browser storage state between runs.
type SessionStore interface {
	// Load returns the stored blob. found is false when nothing was saved yet.
	Load(ctx context.Context) (blob []byte, found bool, err error)
	Save(ctx context.Context, blob []byte) error
}

// FileSessionStore keeps the storage state in a local file.
type FileSessionStore struct {
	Path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{Path: path}
}

func (s *FileSessionStore) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// Save writes through a temp file so a crash never leaves a torn session.
func (s *FileSessionStore) Save(ctx context.Context, blob []byte) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
