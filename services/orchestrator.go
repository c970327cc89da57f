package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/models"
)

const flushTimeout = 30 * time.Second

// Orchestrator runs one application pass: authenticate, discover, then apply
// to each job in discovery order, one at a time.
type Orchestrator struct {
	session   *BrowserSession
	discovery *JobDiscovery
	workflow  *ApplicationWorkflow
	journal   *FailureJournal
	cfg       config.RunConfig
	filterURL string
	logger    *zap.Logger

	stop atomic.Bool
}

func NewOrchestrator(session *BrowserSession, discovery *JobDiscovery, workflow *ApplicationWorkflow, journal *FailureJournal, cfg config.RunConfig, filterURL string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		session:   session,
		discovery: discovery,
		workflow:  workflow,
		journal:   journal,
		cfg:       cfg,
		filterURL: filterURL,
		logger:    logger.Named("orchestrator"),
	}
}

// Stop asks the run to end before the next job. The job in flight finishes.
func (o *Orchestrator) Stop() {
	o.stop.Store(true)
}

// Run performs the pass. The result is always returned, with whatever was
// achieved before a fatal error, and the journal is flushed on every path.
func (o *Orchestrator) Run(ctx context.Context) (result *models.RunResult, err error) {
	result = &models.RunResult{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}
	log := o.logger.With(zap.String("run_id", result.RunID))
	log.Info("Run started")

	defer func() {
		if r := recover(); r != nil {
			log.Error("Run panicked", zap.Any("panic", r))
			err = fmt.Errorf("run panicked: %v", r)
		}
		o.finish(ctx, result, err, log)
	}()

	if err := o.session.Open(ctx); err != nil {
		if errors.Is(err, ErrAuthenticationRequired) {
			log.Error("No valid session, aborting run", zap.Error(err))
		}
		return result, fmt.Errorf("open session: %w", err)
	}

	jobs, err := o.discovery.Search(ctx, o.filterURL, true)
	if err != nil {
		return result, fmt.Errorf("discover jobs: %w", err)
	}
	result.Found = len(jobs)
	log.Info("Jobs discovered", zap.Int("found", len(jobs)))
	listingURL := o.session.Page().URL()

	for i, job := range jobs {
		if o.cfg.MaxApplications > 0 && result.Applied+result.Failed >= o.cfg.MaxApplications {
			log.Info("Application cap reached", zap.Int("cap", o.cfg.MaxApplications))
			break
		}
		if o.stop.Load() {
			log.Info("Stop requested")
			break
		}
		if i > 0 {
			if err := sleepCtx(ctx, o.cfg.ApplyDelay); err != nil {
				return result, err
			}
		} else if err := ctx.Err(); err != nil {
			return result, err
		}

		job, outcome, ok := o.reacquire(ctx, job, listingURL)
		if !ok {
			o.tally(result, outcome)
			continue
		}
		o.tally(result, o.workflow.Run(ctx, job))
	}
	return result, nil
}

// ApplyOne runs the workflow against a single job URL.
func (o *Orchestrator) ApplyOne(ctx context.Context, jobURL string) (outcome models.ApplicationOutcome, err error) {
	result := &models.RunResult{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}
	log := o.logger.With(zap.String("run_id", result.RunID), zap.String("url", jobURL))
	defer func() { o.finish(ctx, result, err, log) }()

	if err := o.session.Open(ctx); err != nil {
		return outcome, fmt.Errorf("open session: %w", err)
	}
	result.Found = 1
	outcome = o.workflow.Run(ctx, models.JobHandle{URL: jobURL})
	o.tally(result, outcome)
	return outcome, nil
}

func (o *Orchestrator) tally(result *models.RunResult, outcome models.ApplicationOutcome) {
	o.journal.Record(outcome)
	if outcome.Kind.Failed() {
		result.Failed++
	} else {
		result.Applied++
	}
}

// reacquire makes an element-only handle usable again after an earlier job
// navigated the listing page away. Handles are re-picked by index.
func (o *Orchestrator) reacquire(ctx context.Context, job models.JobHandle, listingURL string) (models.JobHandle, models.ApplicationOutcome, bool) {
	if job.Navigable() || listingURL == "" || o.session.Page().URL() == listingURL {
		return job, models.ApplicationOutcome{}, true
	}
	o.logger.Debug("Listing page left, re-scanning", zap.Int("index", job.Index))
	fresh, err := o.discovery.Search(ctx, listingURL, true)
	if err == nil && job.Index < len(fresh) {
		return fresh[job.Index], models.ApplicationOutcome{}, true
	}
	reason := fmt.Sprintf("%v: job card %d not found after returning to the listing", ErrElementNotFound, job.Index)
	if err != nil {
		reason = fmt.Sprintf("re-scan listing: %v", err)
	}
	return job, models.NewOutcome(models.FailedException, job.Title, job.URL, reason), false
}

func (o *Orchestrator) finish(ctx context.Context, result *models.RunResult, runErr error, log *zap.Logger) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if err := o.journal.Flush(flushCtx); err != nil {
		log.Error("Failure journal not flushed", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	if o.session.Valid() {
		if err := o.session.Save(flushCtx); err != nil {
			log.Warn("Session not saved", zap.Error(err))
		}
	}
	if err := o.session.Close(); err != nil {
		log.Debug("Closing session failed", zap.Error(err))
	}

	result.Failures = o.journal.Failures()
	result.FinishedAt = time.Now().UTC()
	if runErr != nil {
		result.Error = runErr.Error()
	}
	log.Info("Run finished",
		zap.Int("found", result.Found),
		zap.Int("applied", result.Applied),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
}
