package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/driver"
	"jobpilot/models"
)

const defaultLoginTimeout = 5 * time.Minute

// BrowserSession owns the browser, its one automation context and the page
// every component borrows. It restores and persists the authenticated state.
type BrowserSession struct {
	launcher driver.Launcher
	store    SessionStore
	locator  *ElementLocator
	cfg      config.SessionConfig
	launch   driver.LaunchOptions
	logger   *zap.Logger
	poll     time.Duration

	browser driver.Browser
	context driver.Context
	page    driver.Page
	state   models.SessionState
	closed  bool
}

func NewBrowserSession(launcher driver.Launcher, store SessionStore, locator *ElementLocator, cfg config.SessionConfig, browser config.BrowserConfig, logger *zap.Logger) *BrowserSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = defaultLoginTimeout
	}
	return &BrowserSession{
		launcher: launcher,
		store:    store,
		locator:  locator,
		cfg:      cfg,
		launch:   driver.LaunchOptions{Headless: browser.Headless, UserAgent: browser.UserAgent},
		logger:   logger.Named("session"),
		poll:     time.Second,
	}
}

// Open launches the browser and restores the stored session. It returns
// ErrAuthenticationRequired, with a fresh unauthenticated page ready for
// Login, when there is no stored session or the stored one was rejected.
func (s *BrowserSession) Open(ctx context.Context) error {
	if s.closed {
		return errors.New("session already closed")
	}
	if s.browser == nil {
		b, err := s.launcher.Launch(ctx, s.launch)
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		s.browser = b
	}

	blob, found, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("Could not load stored session, starting fresh", zap.Error(err))
		found = false
	}
	if !found {
		if err := s.fresh(ctx); err != nil {
			return err
		}
		return ErrAuthenticationRequired
	}

	if err := s.newContext(ctx, blob); err != nil {
		return err
	}
	s.state = models.SessionState{Blob: blob}

	valid, err := s.probe(ctx)
	if err != nil {
		return err
	}
	if !valid {
		s.logger.Warn("Stored session rejected, discarding it")
		if err := s.fresh(ctx); err != nil {
			return err
		}
		return ErrAuthenticationRequired
	}
	s.state.Valid = true
	s.logger.Info("Session restored")
	return nil
}

// probe visits a page that requires authentication and checks whether the
// site bounced us to a sign-in surface.
func (s *BrowserSession) probe(ctx context.Context) (bool, error) {
	target := s.cfg.ProbeURL
	if target == "" {
		s.logger.Debug("No probe URL configured, trusting stored session")
		return true, nil
	}
	if err := s.page.Goto(ctx, target); err != nil {
		return false, fmt.Errorf("failed to probe session: %w", err)
	}
	if err := s.page.WaitForLoad(ctx); err != nil {
		return false, fmt.Errorf("failed to probe session: %w", err)
	}
	return !s.isSignIn(s.page.URL()), nil
}

func (s *BrowserSession) fresh(ctx context.Context) error {
	s.state = models.SessionState{}
	return s.newContext(ctx, nil)
}

func (s *BrowserSession) newContext(ctx context.Context, blob []byte) error {
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			s.logger.Debug("Closing previous context failed", zap.Error(err))
		}
		s.context, s.page = nil, nil
	}
	c, err := s.browser.NewContext(ctx, blob)
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	p, err := c.NewPage(ctx)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to open page: %w", err)
	}
	s.context, s.page = c, p
	return nil
}

// Login opens the sign-in page, pre-fills the identity field and waits for
// the user to finish signing in. The result is saved.
func (s *BrowserSession) Login(ctx context.Context) error {
	if s.page == nil {
		return errors.New("session not open")
	}
	if s.cfg.LoginURL == "" {
		return errors.New("session.login_url is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	if err := s.page.Goto(ctx, s.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := s.page.WaitForLoad(ctx); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if s.cfg.Identity != "" {
		if field, ok := s.locator.Locate(ctx, s.page, IntentIdentityField); ok {
			if err := field.Fill(ctx, s.cfg.Identity); err != nil {
				s.logger.Debug("Identity pre-fill failed", zap.Error(err))
			}
		}
	}

	s.logger.Info("Waiting for sign-in to complete in the browser", zap.Duration("timeout", s.cfg.LoginTimeout))
	for !s.signedIn() {
		if err := sleepCtx(ctx, s.poll); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrAuthenticationTimeout, s.cfg.LoginTimeout)
			}
			return err
		}
	}

	s.state.Valid = true
	s.logger.Info("Signed in", zap.String("url", s.page.URL()))
	return s.Save(ctx)
}

func (s *BrowserSession) signedIn() bool {
	current := s.page.URL()
	return current != "" && current != s.cfg.LoginURL && !s.isSignIn(current)
}

func (s *BrowserSession) isSignIn(raw string) bool {
	target := strings.ToLower(raw)
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		target = strings.ToLower(u.Path)
	}
	for _, p := range s.cfg.SignInPatterns {
		if p != "" && strings.Contains(target, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Save persists the current storage state. An unauthenticated state is
// never written over a stored one.
func (s *BrowserSession) Save(ctx context.Context) error {
	if s.context == nil || !s.state.Valid {
		return nil
	}
	blob, err := s.context.StorageState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read storage state: %w", err)
	}
	if err := s.store.Save(ctx, blob); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.state.Blob = blob
	s.logger.Info("Session saved", zap.Int("bytes", len(blob)))
	return nil
}

// Close releases the context and the browser. Calling it twice is harmless.
func (s *BrowserSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.context != nil {
		errs = append(errs, s.context.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	s.context, s.page, s.browser = nil, nil, nil
	return errors.Join(errs...)
}

// Page is the page borrowed by discovery and the workflow.
func (s *BrowserSession) Page() driver.Page { return s.page }

// Valid reports whether the session is authenticated.
func (s *BrowserSession) Valid() bool { return s.state.Valid }

func (s *BrowserSession) ExpectNewPage(ctx context.Context, wait time.Duration, action func() error) (driver.Page, error) {
	if s.context == nil {
		return nil, errors.New("session not open")
	}
	return s.context.ExpectNewPage(ctx, wait, action)
}
