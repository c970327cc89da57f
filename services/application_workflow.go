package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/driver"
	"jobpilot/models"
)

// State is a step of the per-job state machine.
type State string

const (
	StateOpening         State = "Opening"
	StateAutofillAttempt State = "AutofillAttempt"
	StateApplying        State = "Applying"
	StateFormFilling     State = "FormFilling"
	StateSubmitting      State = "Submitting"
	StateConfirming      State = "Confirming"
	StateConfirmed       State = "Confirmed"
	StateFailed          State = "Failed"
)

// Workspace is the part of BrowserSession a workflow borrows: the page, and
// the ability to catch a tab opened by an action.
type Workspace interface {
	Page() driver.Page
	ExpectNewPage(ctx context.Context, wait time.Duration, action func() error) (driver.Page, error)
}

// ApplicationWorkflow applies to one job at a time. Every failure is turned
// into an outcome at this boundary; Run never returns an error or panics.
type ApplicationWorkflow struct {
	workspace Workspace
	locator   *ElementLocator
	filler    *FormFiller
	checker   *SubmissionChecker
	cfg       config.WorkflowConfig
	logger    *zap.Logger
	shots     *ScreenshotService

	trace []State
}

func NewApplicationWorkflow(workspace Workspace, locator *ElementLocator, filler *FormFiller, checker *SubmissionChecker, cfg config.WorkflowConfig, logger *zap.Logger) *ApplicationWorkflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubmitBudget <= 0 {
		cfg.SubmitBudget = 30 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.MaxFormPages <= 0 {
		cfg.MaxFormPages = 8
	}
	return &ApplicationWorkflow{
		workspace: workspace,
		locator:   locator,
		filler:    filler,
		checker:   checker,
		cfg:       cfg,
		logger:    logger.Named("workflow"),
	}
}

// WithScreenshots captures the page of every failed attempt.
func (w *ApplicationWorkflow) WithScreenshots(s *ScreenshotService) *ApplicationWorkflow {
	w.shots = s
	return w
}

// Trace returns the states visited by the last Run.
func (w *ApplicationWorkflow) Trace() []State {
	out := make([]State, len(w.trace))
	copy(out, w.trace)
	return out
}

// stepError carries the outcome kind a failed step maps to.
type stepError struct {
	kind models.OutcomeKind
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(kind models.OutcomeKind, err error) error {
	return &stepError{kind: kind, err: err}
}

// jobRun is the mutable state of one Run.
type jobRun struct {
	job    models.JobHandle
	page   driver.Page
	tab    driver.Page
	report FillReport
}

// Run drives job through the state machine and classifies the result.
func (w *ApplicationWorkflow) Run(ctx context.Context, job models.JobHandle) (outcome models.ApplicationOutcome) {
	w.trace = w.trace[:0]
	run := &jobRun{job: job}
	log := w.logger.With(zap.String("title", job.Title), zap.String("url", job.URL), zap.Int("index", job.Index))
	start := time.Now()

	defer func() {
		if run.tab != nil {
			if err := run.tab.Close(); err != nil {
				log.Debug("Closing job tab failed", zap.Error(err))
			}
		}
		if r := recover(); r != nil {
			log.Error("Workflow panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			w.enter(StateFailed)
			outcome = w.outcome(run, models.FailedException, fmt.Sprintf("panic: %v", r))
		}
		log.Info("Application finished",
			zap.String("outcome", string(outcome.Kind)),
			zap.String("reason", outcome.Reason),
			zap.Duration("elapsed", time.Since(start)))
	}()

	err := w.run(ctx, run)
	if err == nil {
		w.enter(StateConfirmed)
		return w.outcome(run, models.Succeeded, "")
	}

	w.enter(StateFailed)
	kind := models.FailedException
	var se *stepError
	if errors.As(err, &se) {
		kind = se.kind
	}
	outcome = w.outcome(run, kind, err.Error())
	outcome.Screenshot = w.shots.Capture(ctx, run.page, outcome.ID)
	return outcome
}

func (w *ApplicationWorkflow) run(ctx context.Context, run *jobRun) error {
	budget, cancel := context.WithTimeout(ctx, w.cfg.SubmitBudget)
	defer cancel()

	if err := w.prepare(ctx, budget, run); err != nil {
		return err
	}
	return w.confirm(ctx, run)
}

// prepare covers Opening through Submitting, all under the budget.
func (w *ApplicationWorkflow) prepare(ctx, budget context.Context, run *jobRun) error {
	overBudget := func(step string, err error) error {
		if ctx.Err() == nil && budget.Err() != nil {
			return fail(models.FailedTimeout, fmt.Errorf("%s: budget of %s exceeded before submission: %w", step, w.cfg.SubmitBudget, err))
		}
		return err
	}

	w.enter(StateOpening)
	if err := w.open(budget, run); err != nil {
		return overBudget("opening", err)
	}

	w.enter(StateAutofillAttempt)
	w.autofill(budget, run.page)

	w.enter(StateApplying)
	if err := w.apply(budget, run); err != nil {
		return overBudget("applying", err)
	}

	w.enter(StateFormFilling)
	if err := w.fillPages(budget, run); err != nil {
		return overBudget("filling", err)
	}

	w.enter(StateSubmitting)
	if err := budget.Err(); err != nil {
		return overBudget("submitting", err)
	}
	return w.submit(budget, run)
}

func (w *ApplicationWorkflow) open(ctx context.Context, run *jobRun) error {
	page := w.workspace.Page()
	if page == nil {
		return errors.New("no page available")
	}

	if run.job.Navigable() {
		if err := page.Goto(ctx, run.job.URL); err != nil {
			return fmt.Errorf("navigate to job: %w", err)
		}
		run.page = page
		return page.WaitForLoad(ctx)
	}

	if run.job.Element == nil {
		return errors.New("job handle has neither URL nor element")
	}
	tab, err := w.workspace.ExpectNewPage(ctx, w.cfg.PopupWait, func() error {
		return run.job.Element.Click(ctx)
	})
	switch {
	case err == nil:
		run.tab = tab
		run.page = tab
	case errors.Is(err, driver.ErrNoNewPage):
		// Same-tab navigation: the listing page is gone until re-navigated.
		run.page = page
	default:
		return fmt.Errorf("activate job card: %w", err)
	}
	return run.page.WaitForLoad(ctx)
}

// autofill focuses the first text input to trigger platform autofill, then
// looks for an explicit autofill control if nothing populated. Never fatal.
func (w *ApplicationWorkflow) autofill(ctx context.Context, page driver.Page) {
	inputs, _ := page.Query(ctx, textFieldSelector)
	for _, in := range inputs {
		if visible, _ := in.IsVisible(ctx); visible {
			if err := in.Focus(ctx); err != nil {
				w.logger.Debug("Focus for autofill failed", zap.Error(err))
			}
			break
		}
	}
	if populated(ctx, page) {
		w.logger.Debug("Fields populated after focus")
		return
	}
	if el, ok := w.locator.Locate(ctx, page, IntentAutofill); ok {
		if err := el.Click(ctx); err != nil {
			w.logger.Debug("Autofill control click failed", zap.Error(err))
			return
		}
		_ = sleepCtx(ctx, w.cfg.AutofillWait)
		w.logger.Debug("Autofill control activated", zap.Bool("populated", populated(ctx, page)))
	}
}

func populated(ctx context.Context, page driver.Page) bool {
	inputs, err := page.Query(ctx, textFieldSelector)
	if err != nil {
		return false
	}
	for _, in := range inputs {
		if v, _ := in.Value(ctx); strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func (w *ApplicationWorkflow) apply(ctx context.Context, run *jobRun) error {
	el, ok := w.locator.Locate(ctx, run.page, IntentApply)
	if !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fail(models.FailedNoApplyControl, ErrNoApplyControl)
	}
	// Some listings open the application form in a new tab.
	tab, err := w.workspace.ExpectNewPage(ctx, w.cfg.PopupWait, func() error {
		return el.Click(ctx)
	})
	switch {
	case err == nil:
		if run.tab != nil {
			_ = run.tab.Close()
		}
		run.tab = tab
		run.page = tab
	case errors.Is(err, driver.ErrNoNewPage):
	default:
		return fmt.Errorf("click apply control: %w", err)
	}
	return run.page.WaitForLoad(ctx)
}

// fillPages fills the current form page and advances through next-step
// controls, up to MaxFormPages pages.
func (w *ApplicationWorkflow) fillPages(ctx context.Context, run *jobRun) error {
	for pageNo := 1; ; pageNo++ {
		report, err := w.filler.Fill(ctx, run.page)
		run.report.add(report)
		if err != nil {
			return fmt.Errorf("fill form page %d: %w", pageNo, err)
		}
		w.checkRequiredBoxes(ctx, run.page)

		if pageNo >= w.cfg.MaxFormPages {
			w.logger.Warn("Form page limit reached", zap.Int("pages", pageNo))
			return nil
		}
		next, ok := w.locator.Locate(ctx, run.page, IntentNextStep)
		if !ok {
			return nil
		}
		if err := next.Click(ctx); err != nil {
			return fmt.Errorf("advance form page %d: %w", pageNo, err)
		}
		if err := run.page.WaitForLoad(ctx); err != nil {
			return err
		}
	}
}

// checkRequiredBoxes catches consent boxes the field scan missed, such as
// ones whose label sits outside the control.
func (w *ApplicationWorkflow) checkRequiredBoxes(ctx context.Context, page driver.Page) {
	box, ok := w.locator.Locate(ctx, page, IntentRequiredCheckbox)
	if !ok {
		return
	}
	if checked, _ := box.IsChecked(ctx); checked {
		return
	}
	if err := box.Check(ctx); err != nil {
		w.logger.Debug("Required checkbox could not be checked", zap.Error(err))
	}
}

func (w *ApplicationWorkflow) submit(ctx context.Context, run *jobRun) error {
	el, ok := w.locator.Locate(ctx, run.page, IntentSubmit)
	if !ok {
		w.logger.Info("No submit control, waiting for auto-submit confirmation")
		return nil
	}
	if err := el.Click(ctx); err != nil {
		return fail(models.FailedSubmission, fmt.Errorf("%w: submit click: %v", ErrSubmissionFailed, err))
	}
	return nil
}

// confirm waits for a success indicator. On timeout it retries autofill,
// filling and submission exactly once.
func (w *ApplicationWorkflow) confirm(ctx context.Context, run *jobRun) error {
	w.enter(StateConfirming)
	if _, err := w.checker.WaitForConfirmation(ctx, run.page, w.cfg.ConfirmTimeout, w.cfg.PollInterval); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	w.logger.Info("No confirmation, retrying submission once")
	retry, cancel := context.WithTimeout(ctx, w.cfg.SubmitBudget)
	w.enter(StateAutofillAttempt)
	w.autofill(retry, run.page)
	w.enter(StateFormFilling)
	report, ferr := w.filler.Fill(retry, run.page)
	run.report.add(report)
	if ferr != nil {
		w.logger.Warn("Retry fill failed, not resubmitting", zap.Error(ferr))
	}
	w.enter(StateSubmitting)
	var serr error
	if ferr == nil {
		serr = w.submit(retry, run)
	}
	cancel()
	if serr != nil {
		return serr
	}

	w.enter(StateConfirming)
	_, err := w.checker.WaitForConfirmation(ctx, run.page, w.cfg.ConfirmTimeout, w.cfg.PollInterval)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if msgs := w.checker.ValidationErrors(ctx, run.page); len(msgs) > 0 {
		return fail(models.FailedSubmission, fmt.Errorf("%w: validation errors: %s", ErrSubmissionFailed, strings.Join(msgs, "; ")))
	}
	if w.cfg.OptimisticSuccess {
		w.logger.Warn("No confirmation seen, assuming success")
		return nil
	}
	if ferr != nil {
		return fail(models.FailedTimeout, fmt.Errorf("%w after %s; retry fill failed: %v", ErrSubmissionTimeout, w.cfg.ConfirmTimeout, ferr))
	}
	return fail(models.FailedTimeout, fmt.Errorf("%w after %s and one retry", ErrSubmissionTimeout, w.cfg.ConfirmTimeout))
}

func (w *ApplicationWorkflow) enter(s State) {
	w.trace = append(w.trace, s)
	w.logger.Debug("State", zap.String("state", string(s)))
}

func (w *ApplicationWorkflow) outcome(run *jobRun, kind models.OutcomeKind, reason string) models.ApplicationOutcome {
	title := run.job.Title
	if title == "" && run.page != nil {
		if t, err := run.page.Title(context.Background()); err == nil {
			title = t
		}
	}
	u := run.job.URL
	if u == "" && run.page != nil {
		u = run.page.URL()
	}
	return models.NewOutcome(kind, title, u, reason)
}
