package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobpilot/driver"
)

var successPhrases = []string{
	"Thank you for your application",
	"Thank you for applying",
	"Application submitted",
	"Your application has been submitted",
	"Your application was sent",
	"Application received",
	"We have received your application",
	"Your application is now complete",
	"Successfully submitted",
	"Submission successful",
}

var successElementSelectors = []string{
	"[class*='success']",
	"[class*='confirmation']",
	"[data-testid*='success']",
	"[data-testid*='confirmation']",
	"h1:has-text('Thank you')",
	"h2:has-text('Thank you')",
	"h1:has-text('Submitted')",
	"h2:has-text('Submitted')",
}

var successURLKeywords = []string{
	"success",
	"confirmation",
	"thank",
	"submitted",
	"application-complete",
	"post-apply",
}

var successTitleKeywords = []string{
	"thank you",
	"success",
	"submitted",
	"application received",
	"confirmation",
}

var validationErrorSelectors = []string{
	"[role='alert']",
	"[aria-invalid='true']",
	".artdeco-inline-feedback--error",
	"[class*='error-message']",
	"[class*='field-error']",
}

// SubmissionChecker recognises confirmation and validation-error states.
type SubmissionChecker struct {
	logger *zap.Logger
}

func NewSubmissionChecker(logger *zap.Logger) *SubmissionChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionChecker{logger: logger.Named("submission")}
}

func successTextSelector(phrase string) string {
	return "text=" + phrase
}

// Check reports whether page shows a success indicator, and which one.
func (s *SubmissionChecker) Check(ctx context.Context, page driver.Page) (bool, string) {
	pageURL := page.URL()
	if kw := containsAny(strings.ToLower(pageURL), successURLKeywords); kw != "" {
		return true, "url:" + kw
	}

	if title, err := page.Title(ctx); err == nil {
		if kw := containsAny(strings.ToLower(title), successTitleKeywords); kw != "" {
			return true, "title:" + kw
		}
	}

	for _, phrase := range successPhrases {
		if _, ok := firstVisible(ctx, page, successTextSelector(phrase)); ok {
			return true, "text:" + phrase
		}
	}
	for _, sel := range successElementSelectors {
		if _, ok := firstVisible(ctx, page, sel); ok {
			return true, "element:" + sel
		}
	}
	return false, ""
}

// ValidationErrors returns the visible error messages on page.
func (s *SubmissionChecker) ValidationErrors(ctx context.Context, page driver.Page) []string {
	var msgs []string
	seen := map[string]bool{}
	for _, sel := range validationErrorSelectors {
		els, err := page.Query(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if visible, _ := el.IsVisible(ctx); !visible {
				continue
			}
			t, _ := el.Text(ctx)
			t = cleanLabel(t)
			if t == "" {
				if label, _ := el.Attribute(ctx, "aria-label"); label != "" {
					t = "invalid: " + cleanLabel(label)
				}
			}
			if t != "" && !seen[t] {
				seen[t] = true
				msgs = append(msgs, t)
			}
		}
	}
	return msgs
}

// WaitForConfirmation polls page until a success indicator appears, the
// timeout elapses, or ctx is done.
func (s *SubmissionChecker) WaitForConfirmation(ctx context.Context, page driver.Page, timeout, poll time.Duration) (string, error) {
	if poll <= 0 {
		poll = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if ok, evidence := s.Check(ctx, page); ok {
			s.logger.Info("Submission confirmed", zap.String("evidence", evidence))
			return evidence, nil
		}
		if err := sleepCtx(ctx, poll); err != nil {
			return "", ErrSubmissionTimeout
		}
	}
}

func firstVisible(ctx context.Context, scope driver.Queryer, selector string) (driver.Element, bool) {
	els, err := scope.Query(ctx, selector)
	if err != nil {
		return nil, false
	}
	for _, el := range els {
		if visible, _ := el.IsVisible(ctx); visible {
			return el, true
		}
	}
	return nil, false
}

func containsAny(s string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return kw
		}
	}
	return ""
}
