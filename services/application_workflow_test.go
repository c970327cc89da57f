package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobpilot/config"
	"jobpilot/driver"
	"jobpilot/driver/drivertest"
	"jobpilot/models"
)

type fakeWorkspace struct {
	page    *drivertest.Page
	context *drivertest.Context
}

func newFakeWorkspace(page *drivertest.Page) *fakeWorkspace {
	return &fakeWorkspace{page: page, context: &drivertest.Context{FirstPage: page}}
}

func (f *fakeWorkspace) Page() driver.Page { return f.page }

func (f *fakeWorkspace) ExpectNewPage(ctx context.Context, wait time.Duration, action func() error) (driver.Page, error) {
	return f.context.ExpectNewPage(ctx, wait, action)
}

const (
	applySel   = "button[aria-label*='Easy Apply' i]"
	submitSel  = "button[type='submit']"
	successSel = "text=Thank you for applying"
)

// jobSite is a listing whose apply control reveals a one-field form.
type jobSite struct {
	page   *drivertest.Page
	apply  *drivertest.Element
	submit *drivertest.Element
	email  *drivertest.Element
}

func newJobSite(confirms bool) *jobSite {
	s := &jobSite{
		page:   drivertest.NewPage("about:blank"),
		apply:  drivertest.NewElement("Easy Apply"),
		submit: drivertest.NewElement("Submit application"),
		email:  labeled("Email", "required", ""),
	}
	s.apply.OnClick = func() error {
		s.page.Set(textFieldSelector, s.email)
		s.page.Set(submitSel, s.submit)
		return nil
	}
	if confirms {
		s.submit.OnClick = func() error {
			s.page.Set(successSel, drivertest.NewElement("Thank you for applying"))
			return nil
		}
	}
	s.page.Set(applySel, s.apply)
	return s
}

func testWorkflowConfig() config.WorkflowConfig {
	return config.WorkflowConfig{
		SubmitBudget:   5 * time.Second,
		ConfirmTimeout: 30 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		MaxFormPages:   8,
	}
}

func newTestWorkflow(t *testing.T, ws Workspace, cfg config.WorkflowConfig) *ApplicationWorkflow {
	logger := zaptest.NewLogger(t)
	resolver := NewFieldAnswerResolver(testProfile(), &mockOracle{reply: "Yes"}, logger)
	return NewApplicationWorkflow(ws,
		NewElementLocator(logger),
		NewFormFiller(resolver, "", logger),
		NewSubmissionChecker(logger),
		cfg, logger)
}

func urlJob() models.JobHandle {
	return models.JobHandle{Index: 0, Title: "Backend Engineer", URL: "https://jobs.example.com/jobs/view/1/"}
}

func TestWorkflow_Succeeds(t *testing.T) {
	site := newJobSite(true)
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.Equal(t, "Backend Engineer", out.Title)
	assert.Equal(t, "https://jobs.example.com/jobs/view/1/", out.URL)
	assert.Equal(t, []string{"https://jobs.example.com/jobs/view/1/"}, site.page.Gotos)
	assert.Equal(t, []string{"ada@example.com"}, site.email.Fills)
	assert.Equal(t, 1, site.submit.Clicks)
	assert.Equal(t, []State{
		StateOpening, StateAutofillAttempt, StateApplying, StateFormFilling,
		StateSubmitting, StateConfirming, StateConfirmed,
	}, w.Trace())
}

func TestWorkflow_NoApplyControl(t *testing.T) {
	page := drivertest.NewPage("about:blank")
	w := newTestWorkflow(t, newFakeWorkspace(page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedNoApplyControl, out.Kind)
	assert.Contains(t, out.Reason, ErrNoApplyControl.Error())
	assert.Equal(t, []State{StateOpening, StateAutofillAttempt, StateApplying, StateFailed}, w.Trace())
}

func TestWorkflow_ConfirmationTimeoutRetriesOnce(t *testing.T) {
	site := newJobSite(false)
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedTimeout, out.Kind)
	assert.Contains(t, out.Reason, ErrSubmissionTimeout.Error())
	assert.Equal(t, 2, site.submit.Clicks, "exactly one resubmission")
	assert.Equal(t, []State{
		StateOpening, StateAutofillAttempt, StateApplying, StateFormFilling, StateSubmitting,
		StateConfirming, StateAutofillAttempt, StateFormFilling, StateSubmitting, StateConfirming,
		StateFailed,
	}, w.Trace())
}

func TestWorkflow_RetryFillErrorReported(t *testing.T) {
	site := newJobSite(false)
	site.submit.OnClick = func() error {
		site.page.QueryErr = errors.New("frame detached")
		return nil
	}
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedTimeout, out.Kind)
	assert.Contains(t, out.Reason, ErrSubmissionTimeout.Error())
	assert.Contains(t, out.Reason, "retry fill failed: frame detached")
	assert.Equal(t, 1, site.submit.Clicks, "no resubmission after a failed fill")
}

func TestWorkflow_RetryCanConfirm(t *testing.T) {
	site := newJobSite(false)
	site.submit.OnClick = func() error {
		if site.submit.Clicks == 2 {
			site.page.Set(successSel, drivertest.NewElement("Thank you for applying"))
		}
		return nil
	}
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())
	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.Equal(t, 2, site.submit.Clicks)
}

func TestWorkflow_ValidationErrors(t *testing.T) {
	site := newJobSite(false)
	site.submit.OnClick = func() error {
		site.page.Set("[role='alert']", drivertest.NewElement("Please enter a valid phone number"))
		return nil
	}
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedSubmission, out.Kind)
	assert.Contains(t, out.Reason, "Please enter a valid phone number")
}

func TestWorkflow_SubmitClickError(t *testing.T) {
	site := newJobSite(true)
	site.submit.ClickErr = errors.New("element is detached")
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedSubmission, out.Kind)
	assert.Contains(t, out.Reason, "element is detached")
}

func TestWorkflow_BudgetExceededBeforeSubmit(t *testing.T) {
	site := newJobSite(true)
	reveal := site.apply.OnClick
	site.apply.OnClick = func() error {
		time.Sleep(60 * time.Millisecond)
		return reveal()
	}
	cfg := testWorkflowConfig()
	cfg.SubmitBudget = 20 * time.Millisecond
	w := newTestWorkflow(t, newFakeWorkspace(site.page), cfg)

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.FailedTimeout, out.Kind)
	assert.Contains(t, out.Reason, "budget")
	assert.Equal(t, 0, site.submit.Clicks)
}

func TestWorkflow_PanicBecomesException(t *testing.T) {
	site := newJobSite(true)
	site.apply.OnClick = func() error { panic("driver crashed") }
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	var out models.ApplicationOutcome
	require.NotPanics(t, func() { out = w.Run(context.Background(), urlJob()) })
	assert.Equal(t, models.FailedException, out.Kind)
	assert.Contains(t, out.Reason, "driver crashed")
}

func TestWorkflow_NavigationErrorIsException(t *testing.T) {
	page := drivertest.NewPage("about:blank")
	page.OnGoto = func(p *drivertest.Page, url string) error { return errors.New("net::ERR_NAME_NOT_RESOLVED") }
	w := newTestWorkflow(t, newFakeWorkspace(page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())
	assert.Equal(t, models.FailedException, out.Kind)
	assert.Contains(t, out.Reason, "ERR_NAME_NOT_RESOLVED")
}

func TestWorkflow_ElementHandleOpensNewTab(t *testing.T) {
	listing := drivertest.NewPage("https://jobs.example.com/search")
	site := newJobSite(true)
	ws := newFakeWorkspace(listing)
	ws.context.NextTab = site.page
	card := drivertest.NewElement("Data Engineer")

	w := newTestWorkflow(t, ws, testWorkflowConfig())
	out := w.Run(context.Background(), models.JobHandle{Title: "Data Engineer", Element: card})

	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.Equal(t, 1, card.Clicks)
	assert.True(t, site.page.Closed, "job tab is closed after the run")
	assert.False(t, listing.Closed)
	assert.Empty(t, listing.Gotos)
}

func TestWorkflow_ElementHandleSameTab(t *testing.T) {
	site := newJobSite(true)
	card := drivertest.NewElement("Data Engineer")
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), models.JobHandle{Title: "Data Engineer", Element: card})

	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.False(t, site.page.Closed)
}

func TestWorkflow_AutoSubmitWithoutSubmitControl(t *testing.T) {
	site := newJobSite(false)
	site.apply.OnClick = func() error {
		site.page.Set(successSel, drivertest.NewElement("Thank you for applying"))
		return nil
	}
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())
	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
}

func TestWorkflow_OptimisticSuccess(t *testing.T) {
	cfg := testWorkflowConfig()
	cfg.OptimisticSuccess = true
	site := newJobSite(false)
	w := newTestWorkflow(t, newFakeWorkspace(site.page), cfg)

	out := w.Run(context.Background(), urlJob())
	assert.Equal(t, models.Succeeded, out.Kind)
}

func TestWorkflow_MultiStepForm(t *testing.T) {
	site := newJobSite(true)
	phone := labeled("Phone", "required", "")
	next := drivertest.NewElement("Next")
	site.apply.OnClick = func() error {
		site.page.Set(textFieldSelector, phone)
		site.page.Set("button[data-easy-apply-next-button]", next)
		return nil
	}
	next.OnClick = func() error {
		site.page.Set("button[data-easy-apply-next-button]")
		site.page.Set(textFieldSelector, site.email)
		site.page.Set(submitSel, site.submit)
		return nil
	}
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.Equal(t, []string{"+1 555 0100"}, phone.Fills)
	assert.Equal(t, []string{"ada@example.com"}, site.email.Fills)
	assert.Equal(t, 1, next.Clicks)
}

func TestWorkflow_FormPageLimit(t *testing.T) {
	site := newJobSite(true)
	next := drivertest.NewElement("Next")
	site.apply.OnClick = func() error {
		site.page.Set("button[data-easy-apply-next-button]", next)
		site.page.Set(submitSel, site.submit)
		return nil
	}
	cfg := testWorkflowConfig()
	cfg.MaxFormPages = 3
	w := newTestWorkflow(t, newFakeWorkspace(site.page), cfg)

	out := w.Run(context.Background(), urlJob())
	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.Equal(t, 2, next.Clicks)
}

func TestWorkflow_AutofillControl(t *testing.T) {
	site := newJobSite(true)
	name := labeled("Full name", "required", "")
	autofill := drivertest.NewElement("Autofill with resume")
	autofill.OnClick = func() error {
		name.ValueStr = "Ada Lovelace"
		return nil
	}
	site.page.Set(textFieldSelector, name)
	site.page.Set("button[data-testid*='autofill' i]", autofill)
	site.apply.OnClick = func() error {
		site.page.Set(submitSel, site.submit)
		return nil
	}
	w := newTestWorkflow(t, newFakeWorkspace(site.page), testWorkflowConfig())

	out := w.Run(context.Background(), urlJob())

	assert.Equal(t, models.Succeeded, out.Kind, out.Reason)
	assert.True(t, name.Focused)
	assert.Equal(t, 1, autofill.Clicks)
	assert.Empty(t, name.Fills, "autofilled fields are not overwritten")
}
