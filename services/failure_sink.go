package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"jobpilot/models"
)

// FailureSink is durable storage for failed outcomes. SaveBatch must be safe
// to replay: an outcome already stored is not stored twice.
type FailureSink interface {
	SaveBatch(ctx context.Context, outcomes []models.ApplicationOutcome) error
	GetAll(ctx context.Context) ([]models.ApplicationOutcome, error)
}

var _ FailureSink = (*models.FailureRecordModel)(nil)

// FileFailureSink keeps failures as a JSON array in one file.
type FileFailureSink struct {
	mu   sync.Mutex
	path string
}

func NewFileFailureSink(path string) *FileFailureSink {
	return &FileFailureSink{path: path}
}

func (s *FileFailureSink) SaveBatch(ctx context.Context, outcomes []models.ApplicationOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, o := range existing {
		seen[o.ID] = true
	}
	for _, o := range outcomes {
		if !seen[o.ID] {
			existing = append(existing, o)
			seen[o.ID] = true
		}
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create failure directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write failures: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileFailureSink) GetAll(ctx context.Context) ([]models.ApplicationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileFailureSink) read() ([]models.ApplicationOutcome, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.ApplicationOutcome{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}
	var out []models.ApplicationOutcome
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("failed to decode failures: %w", err)
		}
	}
	sortOutcomes(out)
	return out, nil
}

func sortOutcomes(out []models.ApplicationOutcome) {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
}
