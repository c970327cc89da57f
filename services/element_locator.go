package services

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"jobpilot/driver"
)

// Intent names what the caller is looking for on the page.
type Intent string

const (
	IntentApply            Intent = "apply"
	IntentSubmit           Intent = "submit"
	IntentNextStep         Intent = "next-step"
	IntentRequiredCheckbox Intent = "required-checkbox"
	IntentLoadMore         Intent = "load-more"
	IntentAutofill         Intent = "autofill"
	IntentIdentityField    Intent = "identity-field"
)

// defaultHints are the visible texts tried when the caller passes none.
var defaultHints = map[Intent][]string{
	IntentApply:            {"Easy Apply", "Apply now", "Apply for this job", "Apply"},
	IntentSubmit:           {"Submit application", "Submit Application", "Send application", "Submit", "Apply"},
	IntentNextStep:         {"Next", "Continue", "Review", "Save and continue"},
	IntentRequiredCheckbox: {"I agree", "I acknowledge", "I consent", "I certify", "terms"},
	IntentLoadMore:         {"Show more jobs", "Load more", "See more jobs", "More results", "Show more"},
	IntentAutofill:         {"Autofill with resume", "Autofill", "Auto-fill", "Use my profile", "Import from profile"},
	IntentIdentityField:    {"Email", "Username", "Email or phone"},
}

// roleSelectors are the precise, intent-specific selectors tried first.
var roleSelectors = map[Intent][]string{
	IntentApply: {
		"button[aria-label*='Easy Apply' i]",
		"button.jobs-apply-button",
		"[data-testid*='apply-button' i]",
		"button[aria-label*='Apply' i]",
		"a[data-control-name*='apply']",
	},
	IntentSubmit: {
		"button[aria-label*='Submit application' i]",
		"button[type='submit']",
		"input[type='submit']",
		"[data-testid*='submit' i]",
	},
	IntentNextStep: {
		"button[aria-label*='Continue to next step' i]",
		"button[data-easy-apply-next-button]",
		"button[aria-label*='Review your application' i]",
	},
	IntentRequiredCheckbox: {
		"input[type='checkbox'][required]",
		"input[type='checkbox'][aria-required='true']",
	},
	IntentLoadMore: {
		"button.infinite-scroller__show-more-button",
		"button[aria-label*='more jobs' i]",
		"[data-testid*='load-more' i]",
		"[data-action='load-more']",
	},
	IntentAutofill: {
		"button[data-testid*='autofill' i]",
		"button[aria-label*='autofill' i]",
	},
	IntentIdentityField: {
		"input[autocomplete='username']",
		"input[type='email']",
		"input[name='session_key']",
		"input[name*='email' i]",
		"input[id*='username' i]",
	},
}

// LocatorStrategy is one way of finding an element for an intent.
// Strategies never fail: a miss is reported as false.
type LocatorStrategy interface {
	Name() string
	TryLocate(ctx context.Context, scope driver.Queryer, intent Intent, hints []string) (driver.Element, bool)
}

// ElementLocator tries its strategies in order and returns the first match.
// Earlier strategies are precise, later ones more permissive.
type ElementLocator struct {
	strategies []LocatorStrategy
	logger     *zap.Logger
}

// NewElementLocator builds the default cascade: role/attribute selectors,
// text selectors, label proximity.
func NewElementLocator(logger *zap.Logger) *ElementLocator {
	return NewElementLocatorWith(logger,
		roleSelectorStrategy{},
		textSelectorStrategy{},
		labelProximityStrategy{},
	)
}

// NewElementLocatorWith builds a locator from an explicit strategy list.
func NewElementLocatorWith(logger *zap.Logger, strategies ...LocatorStrategy) *ElementLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElementLocator{strategies: strategies, logger: logger.Named("locator")}
}

// Locate returns the first usable element for intent. With no hints the
// intent's default hints are used.
func (l *ElementLocator) Locate(ctx context.Context, scope driver.Queryer, intent Intent, hints ...string) (driver.Element, bool) {
	if len(hints) == 0 {
		hints = defaultHints[intent]
	}
	for _, s := range l.strategies {
		if ctx.Err() != nil {
			return nil, false
		}
		if el, ok := s.TryLocate(ctx, scope, intent, hints); ok {
			l.logger.Debug("Located element",
				zap.String("intent", string(intent)),
				zap.String("strategy", s.Name()))
			return el, true
		}
	}
	l.logger.Debug("Locator cascade exhausted", zap.String("intent", string(intent)))
	return nil, false
}

// Strategies lists strategy names in priority order.
func (l *ElementLocator) Strategies() []string {
	names := make([]string, 0, len(l.strategies))
	for _, s := range l.strategies {
		names = append(names, s.Name())
	}
	return names
}

type roleSelectorStrategy struct{}

func (roleSelectorStrategy) Name() string { return "role-selector" }

func (roleSelectorStrategy) TryLocate(ctx context.Context, scope driver.Queryer, intent Intent, hints []string) (driver.Element, bool) {
	return firstUsable(ctx, scope, roleSelectors[intent])
}

type textSelectorStrategy struct{}

func (textSelectorStrategy) Name() string { return "text-selector" }

func (textSelectorStrategy) TryLocate(ctx context.Context, scope driver.Queryer, intent Intent, hints []string) (driver.Element, bool) {
	for _, hint := range hints {
		if el, ok := firstUsable(ctx, scope, textSelectors(intent, hint)); ok {
			return el, true
		}
	}
	return nil, false
}

// textSelectors builds the text-content selectors for one hint.
func textSelectors(intent Intent, hint string) []string {
	q := strconv.Quote(hint)
	switch intent {
	case IntentRequiredCheckbox:
		return []string{
			fmt.Sprintf("label:has-text(%s) input[type='checkbox']", q),
			fmt.Sprintf("input[type='checkbox'][aria-label*=%s i]", q),
		}
	case IntentIdentityField:
		return []string{
			fmt.Sprintf("input[placeholder*=%s i]", q),
			fmt.Sprintf("input[aria-label*=%s i]", q),
		}
	default:
		return []string{
			fmt.Sprintf("button:has-text(%s)", q),
			fmt.Sprintf("a:has-text(%s)", q),
			fmt.Sprintf("[role='button']:has-text(%s)", q),
			fmt.Sprintf("input[type='submit'][value*=%s i]", q),
		}
	}
}

type labelProximityStrategy struct{}

func (labelProximityStrategy) Name() string { return "label-proximity" }

func (labelProximityStrategy) TryLocate(ctx context.Context, scope driver.Queryer, intent Intent, hints []string) (driver.Element, bool) {
	nested, following := proximitySelectors(intent)
	for _, hint := range hints {
		labels, err := scope.Query(ctx, labelSelector(hint))
		if err != nil {
			continue
		}
		for _, label := range labels {
			if id, _ := label.Attribute(ctx, "for"); id != "" {
				if el, ok := firstUsable(ctx, scope, []string{idSelector(id)}); ok {
					return el, true
				}
			}
			if el, ok := firstUsable(ctx, label, []string{nested, following}); ok {
				return el, true
			}
		}
	}
	return nil, false
}

func labelSelector(hint string) string {
	return fmt.Sprintf("label:has-text(%s)", strconv.Quote(hint))
}

func idSelector(id string) string {
	return fmt.Sprintf("[id=%s]", strconv.Quote(id))
}

// proximitySelectors returns the control selectors searched inside and after
// a matched label.
func proximitySelectors(intent Intent) (nested, following string) {
	switch intent {
	case IntentRequiredCheckbox:
		return "input[type='checkbox']", "xpath=following::input[@type='checkbox'][1]"
	case IntentIdentityField:
		return "input", "xpath=following::input[1]"
	default:
		return "button", "xpath=following::button[1]"
	}
}

// firstUsable returns the first visible, enabled element matched by any of
// the selectors, in order.
func firstUsable(ctx context.Context, scope driver.Queryer, selectors []string) (driver.Element, bool) {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		els, err := scope.Query(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if usable(ctx, el) {
				return el, true
			}
		}
	}
	return nil, false
}

func usable(ctx context.Context, el driver.Element) bool {
	visible, err := el.IsVisible(ctx)
	if err != nil || !visible {
		return false
	}
	enabled, err := el.IsEnabled(ctx)
	return err == nil && enabled
}
