package models

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeKind is the terminal classification of one application attempt.
type OutcomeKind string

const (
	Succeeded            OutcomeKind = "Succeeded"
	FailedSubmission     OutcomeKind = "FailedSubmission"
	FailedTimeout        OutcomeKind = "FailedTimeout"
	FailedNoApplyControl OutcomeKind = "FailedNoApplyControl"
	FailedException      OutcomeKind = "FailedException"
)

// Failed reports whether the kind is one of the failure kinds.
func (k OutcomeKind) Failed() bool {
	return k != Succeeded
}

// ApplicationOutcome is the result of one workflow run against one job.
type ApplicationOutcome struct {
	ID        string      `json:"id"`
	Kind      OutcomeKind `json:"kind"`
	Title     string      `json:"title"`
	URL       string      `json:"url"`
	Timestamp time.Time   `json:"timestamp"`
	Reason    string      `json:"reason"`

	// Screenshot locates the page capture taken when the attempt failed.
	Screenshot string `json:"screenshot,omitempty"`
}

// NewOutcome stamps an outcome with a fresh ID and the current time.
func NewOutcome(kind OutcomeKind, title, url, reason string) ApplicationOutcome {
	return ApplicationOutcome{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		URL:       url,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
}

// RunResult aggregates one orchestrator run. It is returned even when the run
// ends early.
type RunResult struct {
	RunID      string               `json:"run_id"`
	Found      int                  `json:"found"`
	Applied    int                  `json:"applied"`
	Failed     int                  `json:"failed"`
	Failures   []ApplicationOutcome `json:"failures"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Error      string               `json:"error,omitempty"`
}
