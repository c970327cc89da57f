// Package driver is the seam between the application engine and the browser
// automation library. Everything above this package talks to pages and
// elements through these interfaces so the engine can be exercised with fakes.
package driver

import (
	"context"
	"errors"
	"time"
)

// ErrNoNewPage is returned by Context.ExpectNewPage when the action did not
// open a new tab before the wait expired.
var ErrNoNewPage = errors.New("no new page opened")

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless  bool
	UserAgent string
	Args      []string
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one running browser process.
type Browser interface {
	// NewContext creates an isolated automation context. A nil state starts
	// from a clean profile, otherwise the persisted storage state is restored.
	NewContext(ctx context.Context, state []byte) (Context, error)
	Close() error
}

// Context is a browser context: cookies, storage and the pages opened in it.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	// StorageState serializes cookies and local storage for persistence.
	StorageState(ctx context.Context) ([]byte, error)
	// ExpectNewPage runs action and returns the tab it opened, or
	// ErrNoNewPage when none appears within the wait.
	ExpectNewPage(ctx context.Context, wait time.Duration, action func() error) (Page, error)
	Close() error
}

// Queryer finds elements by selector. Pages and elements both implement it,
// selectors are resolved relative to the receiver.
type Queryer interface {
	Query(ctx context.Context, selector string) ([]Element, error)
}

// Page is one browser tab.
type Page interface {
	Queryer

	Goto(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	URL() string
	Title(ctx context.Context) (string, error)
	WaitForLoad(ctx context.Context) error
	ScrollToBottom(ctx context.Context) error
	Evaluate(ctx context.Context, script string) (any, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Element is a handle to one DOM node.
type Element interface {
	Queryer

	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Focus(ctx context.Context) error
	Press(ctx context.Context, key string) error
	Check(ctx context.Context) error
	IsChecked(ctx context.Context) (bool, error)
	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	Value(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	HasAttribute(ctx context.Context, name string) (bool, error)
	// SelectOption selects a native <option> by label or value.
	SelectOption(ctx context.Context, option string) error
	// SetValue assigns the value through script and dispatches input and
	// change events, for controls that ignore synthetic selection.
	SetValue(ctx context.Context, value string) error
	SetInputFiles(ctx context.Context, path string) error
}

// Timeout returns the time left on ctx, capped at def. A context without a
// deadline yields def.
func Timeout(ctx context.Context, def time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return def
	}
	left := time.Until(deadline)
	if left <= 0 {
		return time.Millisecond
	}
	if def > 0 && left > def {
		return def
	}
	return left
}
