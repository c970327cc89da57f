package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultActionTimeout     = 10 * time.Second
	defaultNavigationTimeout = 30 * time.Second
)

// PlaywrightLauncher launches Chromium through playwright-go.
type PlaywrightLauncher struct{}

// NewPlaywrightLauncher returns a Launcher backed by playwright.
func NewPlaywrightLauncher() *PlaywrightLauncher {
	return &PlaywrightLauncher{}
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	args := opts.Args
	if len(args) == 0 {
		args = []string{
			"--no-sandbox",
			"--disable-blink-features=AutomationControlled",
			"--disable-extensions",
		}
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	return &pwBrowser{pw: pw, browser: browser, userAgent: opts.UserAgent}, nil
}

type pwBrowser struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	userAgent string
}

func (b *pwBrowser) NewContext(ctx context.Context, state []byte) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1920, Height: 1080},
	}
	if b.userAgent != "" {
		opts.UserAgent = playwright.String(b.userAgent)
	}

	// playwright restores storage state from a file path, so the blob is
	// staged in a temp file for the duration of the call.
	if len(state) > 0 {
		f, err := os.CreateTemp("", "storage-state-*.json")
		if err != nil {
			return nil, fmt.Errorf("could not stage storage state: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(state); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not stage storage state: %w", err)
		}
		f.Close()
		opts.StorageStatePath = playwright.String(f.Name())
	}

	bctx, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(defaultActionTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(defaultNavigationTimeout.Milliseconds()))

	return &pwContext{ctx: bctx}, nil
}

func (b *pwBrowser) Close() error {
	var errs []error
	if b.browser != nil {
		errs = append(errs, b.browser.Close())
	}
	if b.pw != nil {
		errs = append(errs, b.pw.Stop())
	}
	return errors.Join(errs...)
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) StorageState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state, err := c.ctx.StorageState()
	if err != nil {
		return nil, fmt.Errorf("could not read storage state: %w", err)
	}
	return json.Marshal(state)
}

func (c *pwContext) ExpectNewPage(ctx context.Context, wait time.Duration, action func() error) (Page, error) {
	var actionErr error
	page, err := c.ctx.ExpectPage(func() error {
		actionErr = action()
		return actionErr
	}, playwright.BrowserContextExpectPageOptions{
		Timeout: millis(ctx, wait),
	})
	if actionErr != nil {
		return nil, actionErr
	}
	if err != nil {
		return nil, ErrNoNewPage
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Query(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wrapAll(p.page.Locator(selector).All())
}

func (p *pwPage) Goto(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(ctx, defaultNavigationTimeout),
	})
	return err
}

func (p *pwPage) GoBack(ctx context.Context) error {
	_, err := p.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(ctx, defaultNavigationTimeout),
	})
	return err
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *pwPage) WaitForLoad(ctx context.Context) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: millis(ctx, defaultNavigationTimeout),
	})
}

func (p *pwPage) ScrollToBottom(ctx context.Context) error {
	_, err := p.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)")
	return err
}

func (p *pwPage) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Evaluate(script)
}

func (p *pwPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  millis(ctx, defaultActionTimeout),
	})
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

type pwElement struct {
	loc playwright.Locator
}

func wrapAll(locs []playwright.Locator, err error) ([]Element, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(locs))
	for _, l := range locs {
		out = append(out, &pwElement{loc: l})
	}
	return out, nil
}

func (e *pwElement) Query(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wrapAll(e.loc.Locator(selector).All())
}

func (e *pwElement) Click(ctx context.Context) error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(ctx, defaultActionTimeout)})
}

func (e *pwElement) Fill(ctx context.Context, value string) error {
	return e.loc.Fill(value, playwright.LocatorFillOptions{Timeout: millis(ctx, defaultActionTimeout)})
}

func (e *pwElement) Focus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Focus()
}

func (e *pwElement) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Press(key)
}

func (e *pwElement) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Check()
}

func (e *pwElement) IsChecked(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsChecked()
}

func (e *pwElement) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsVisible()
}

func (e *pwElement) IsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsEnabled()
}

func (e *pwElement) Value(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.InputValue()
}

func (e *pwElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.TextContent()
}

func (e *pwElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.GetAttribute(name)
}

func (e *pwElement) HasAttribute(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err := e.loc.Evaluate(`(el, name) => el.hasAttribute(name)`, name)
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

func (e *pwElement) SelectOption(ctx context.Context, option string) error {
	timeout := millis(ctx, defaultActionTimeout)
	_, err := e.loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{option}},
		playwright.LocatorSelectOptionOptions{Timeout: timeout})
	if err == nil {
		return nil
	}
	_, err = e.loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{option}},
		playwright.LocatorSelectOptionOptions{Timeout: timeout})
	return err
}

const setValueScript = `(el, value) => {
	if (el.tagName === 'SELECT') {
		const match = Array.from(el.options).find(o =>
			o.text.trim().toLowerCase() === value.toLowerCase() || o.value === value);
		if (match) { value = match.value; }
	}
	el.value = value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return el.value;
}`

func (e *pwElement) SetValue(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.loc.Evaluate(setValueScript, value)
	return err
}

func (e *pwElement) SetInputFiles(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.SetInputFiles(path)
}

// millis converts the remaining context budget into a playwright timeout.
func millis(ctx context.Context, def time.Duration) *float64 {
	return playwright.Float(float64(Timeout(ctx, def).Milliseconds()))
}
