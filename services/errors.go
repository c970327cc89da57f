package services

import "errors"

// Session-level errors abort a run after the journal is flushed.
var (
	ErrAuthenticationRequired = errors.New("authentication required: no valid session, run `jobpilot login` to bootstrap one")
	ErrAuthenticationTimeout  = errors.New("authentication timed out waiting for login to complete")
)

// Job-level errors become journaled outcomes and the run continues.
var (
	ErrElementNotFound   = errors.New("element not found")
	ErrNoApplyControl    = errors.New("apply control not found")
	ErrSubmissionTimeout = errors.New("no confirmation before timeout")
	ErrSubmissionFailed  = errors.New("submission failed")
)

// ErrOracleUnavailable wraps text-completion failures. Fields that depend on
// the oracle are skipped instead of failing the job.
var ErrOracleUnavailable = errors.New("oracle unavailable")
