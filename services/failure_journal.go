package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"jobpilot/models"
)

// FailureJournal buffers failed outcomes for the current run and writes them
// to a FailureSink in batches.
type FailureJournal struct {
	mu      sync.Mutex
	sink    FailureSink
	pending []models.ApplicationOutcome
	all     []models.ApplicationOutcome
	logger  *zap.Logger
}

func NewFailureJournal(sink FailureSink, logger *zap.Logger) *FailureJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureJournal{sink: sink, logger: logger.Named("journal")}
}

// Record keeps outcome if it is a failure. Successes are ignored.
func (j *FailureJournal) Record(outcome models.ApplicationOutcome) {
	if !outcome.Kind.Failed() {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, outcome)
	j.all = append(j.all, outcome)
}

// Flush writes the pending failures. They stay pending when the sink fails,
// so the next Flush retries them.
func (j *FailureJournal) Flush(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.pending) == 0 {
		return nil
	}
	if j.sink == nil {
		return fmt.Errorf("no failure sink configured for %d failures", len(j.pending))
	}
	batch := make([]models.ApplicationOutcome, len(j.pending))
	copy(batch, j.pending)

	if err := j.sink.SaveBatch(ctx, batch); err != nil {
		j.logger.Error("Failed to flush failure journal", zap.Int("pending", len(batch)), zap.Error(err))
		return fmt.Errorf("failed to flush %d failures: %w", len(batch), err)
	}
	j.pending = j.pending[:0]
	j.logger.Info("Failure journal flushed", zap.Int("count", len(batch)))
	return nil
}

// Failures returns every failure recorded by this journal.
func (j *FailureJournal) Failures() []models.ApplicationOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.ApplicationOutcome, len(j.all))
	copy(out, j.all)
	return out
}

// Pending reports how many failures have not reached the sink yet.
func (j *FailureJournal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}
