// Package drivertest provides in-memory fakes of the driver interfaces.
// Pages answer selector queries from a map, so tests describe a page as the
// set of selectors the engine is expected to probe.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobpilot/driver"
)

// Launcher is a fake driver.Launcher.
type Launcher struct {
	Browser  *Browser
	Err      error
	Launches int
}

func (l *Launcher) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	l.Launches++
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Browser == nil {
		l.Browser = &Browser{}
	}
	return l.Browser, nil
}

// Browser is a fake driver.Browser. PageFor decides which page a new context
// opens with, based on the restored state.
type Browser struct {
	PageFor  func(state []byte) *Page
	Contexts []*Context
	Closed   bool
}

func (b *Browser) NewContext(ctx context.Context, state []byte) (driver.Context, error) {
	page := NewPage("about:blank")
	if b.PageFor != nil {
		page = b.PageFor(state)
	}
	c := &Context{RestoredState: state, State: state, FirstPage: page}
	b.Contexts = append(b.Contexts, c)
	return c, nil
}

func (b *Browser) Close() error {
	b.Closed = true
	return nil
}

// Context is a fake driver.Context.
type Context struct {
	RestoredState []byte
	State         []byte
	FirstPage     *Page
	// NextTab is returned by the next ExpectNewPage call, then cleared.
	NextTab *Page
	Closed  bool
}

func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	if c.FirstPage == nil {
		c.FirstPage = NewPage("about:blank")
	}
	c.FirstPage.Context = c
	return c.FirstPage, nil
}

func (c *Context) StorageState(ctx context.Context) ([]byte, error) {
	if c.State == nil {
		return []byte(`{"cookies":[],"origins":[]}`), nil
	}
	return c.State, nil
}

func (c *Context) ExpectNewPage(ctx context.Context, wait time.Duration, action func() error) (driver.Page, error) {
	if err := action(); err != nil {
		return nil, err
	}
	if c.NextTab == nil {
		return nil, driver.ErrNoNewPage
	}
	p := c.NextTab
	c.NextTab = nil
	p.Context = c
	return p, nil
}

func (c *Context) Close() error {
	c.Closed = true
	return nil
}

// Page is a fake driver.Page.
type Page struct {
	mu       sync.Mutex
	Context  *Context
	URLValue string
	TitleStr string
	elements map[string][]*Element

	OnGoto   func(p *Page, url string) error
	OnScroll func(p *Page)
	OnQuery  func(p *Page, selector string)
	// OnURL, when set, is consulted on every URL call and may move the page.
	OnURL func(p *Page)

	// Shot is returned by Screenshot, ShotErr fails it.
	Shot     []byte
	ShotErr  error
	// QueryErr fails every Query while set.
	QueryErr error

	Gotos   []string
	Scrolls int
	Backs   int
	Closed  bool
	Queries []string
	Shots   int
}

// NewPage returns an empty page located at url.
func NewPage(url string) *Page {
	return &Page{URLValue: url, elements: map[string][]*Element{}}
}

// Set replaces the elements matched by selector.
func (p *Page) Set(selector string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements == nil {
		p.elements = map[string][]*Element{}
	}
	p.elements[selector] = els
	return p
}

// Add appends elements to those matched by selector.
func (p *Page) Add(selector string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements == nil {
		p.elements = map[string][]*Element{}
	}
	p.elements[selector] = append(p.elements[selector], els...)
	return p
}

// Clear drops every selector.
func (p *Page) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements = map[string][]*Element{}
}

// Count reports how many elements the selector matches.
func (p *Page) Count(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.elements[selector])
}

func (p *Page) Query(ctx context.Context, selector string) ([]driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.OnQuery != nil {
		p.OnQuery(p, selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Queries = append(p.Queries, selector)
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	return toDriver(p.elements[selector]), nil
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Gotos = append(p.Gotos, url)
	p.URLValue = url
	if p.OnGoto != nil {
		return p.OnGoto(p, url)
	}
	return nil
}

func (p *Page) GoBack(ctx context.Context) error {
	p.Backs++
	return nil
}

func (p *Page) URL() string {
	if p.OnURL != nil {
		p.OnURL(p)
	}
	return p.URLValue
}

func (p *Page) Title(ctx context.Context) (string, error) { return p.TitleStr, nil }

func (p *Page) WaitForLoad(ctx context.Context) error { return ctx.Err() }

func (p *Page) ScrollToBottom(ctx context.Context) error {
	p.Scrolls++
	if p.OnScroll != nil {
		p.OnScroll(p)
	}
	return nil
}

func (p *Page) Evaluate(ctx context.Context, script string) (any, error) { return nil, nil }

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.Shots++
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return p.Shot, nil
}

func (p *Page) Close() error {
	p.Closed = true
	return nil
}

// Element is a fake driver.Element. The zero value is a visible, enabled,
// empty element.
type Element struct {
	TextValue  string
	ValueStr   string
	Attrs      map[string]string
	Hidden     bool
	Disabled   bool
	Checked    bool
	Options    []string
	children   map[string][]*Element
	ClickErr   error
	FillErr    error
	SelectErr  error
	SetErr     error
	OnClick    func() error
	OnFocus    func()
	Clicks     int
	Fills      []string
	Pressed    []string
	Files      []string
	Focused    bool
	SetValues  []string
	Selections []string
}

// NewElement returns a visible element with the given text and attributes
// given as name, value pairs.
func NewElement(text string, attrs ...string) *Element {
	e := &Element{TextValue: text, Attrs: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.Attrs[attrs[i]] = attrs[i+1]
	}
	return e
}

// Child registers descendants matched by selector.
func (e *Element) Child(selector string, els ...*Element) *Element {
	if e.children == nil {
		e.children = map[string][]*Element{}
	}
	e.children[selector] = append(e.children[selector], els...)
	return e
}

func (e *Element) Query(ctx context.Context, selector string) ([]driver.Element, error) {
	return toDriver(e.children[selector]), nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Clicks++
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if e.OnClick != nil {
		return e.OnClick()
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, value string) error {
	if e.FillErr != nil {
		return e.FillErr
	}
	e.Fills = append(e.Fills, value)
	e.ValueStr = value
	return nil
}

func (e *Element) Focus(ctx context.Context) error {
	e.Focused = true
	if e.OnFocus != nil {
		e.OnFocus()
	}
	return nil
}

func (e *Element) Press(ctx context.Context, key string) error {
	e.Pressed = append(e.Pressed, key)
	return nil
}

func (e *Element) Check(ctx context.Context) error {
	e.Checked = true
	return nil
}

func (e *Element) IsChecked(ctx context.Context) (bool, error) { return e.Checked, nil }

func (e *Element) IsVisible(ctx context.Context) (bool, error) { return !e.Hidden, nil }

func (e *Element) IsEnabled(ctx context.Context) (bool, error) { return !e.Disabled, nil }

func (e *Element) Value(ctx context.Context) (string, error) { return e.ValueStr, nil }

func (e *Element) Text(ctx context.Context) (string, error) { return e.TextValue, nil }

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	return e.Attrs[name], nil
}

func (e *Element) HasAttribute(ctx context.Context, name string) (bool, error) {
	_, ok := e.Attrs[name]
	return ok, nil
}

func (e *Element) SelectOption(ctx context.Context, option string) error {
	if e.SelectErr != nil {
		return e.SelectErr
	}
	if len(e.Options) > 0 && !contains(e.Options, option) {
		return fmt.Errorf("option %q not found", option)
	}
	e.Selections = append(e.Selections, option)
	e.ValueStr = option
	return nil
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	if e.SetErr != nil {
		return e.SetErr
	}
	e.SetValues = append(e.SetValues, value)
	e.ValueStr = value
	return nil
}

func (e *Element) SetInputFiles(ctx context.Context, path string) error {
	e.Files = append(e.Files, path)
	return nil
}

// ErrDetached mimics an element whose node left the DOM.
var ErrDetached = errors.New("element is not attached to the DOM")

func toDriver(els []*Element) []driver.Element {
	out := make([]driver.Element, 0, len(els))
	for _, e := range els {
		out = append(out, e)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
