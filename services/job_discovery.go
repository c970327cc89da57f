package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/driver"
	"jobpilot/models"
)

// DefaultCardSelectors match job cards on common listing layouts.
var DefaultCardSelectors = []string{
	"li.jobs-search-results__list-item",
	"div.job-card-container",
	"[data-job-id]",
	"li[data-occludable-job-id]",
	"a[href*='/jobs/view/']",
}

var cardTitleSelectors = []string{
	".job-card-list__title",
	"[class*='job-title']",
	"h3",
	"h2",
	"strong",
}

// PageProvider hands out the single borrowed page.
type PageProvider interface {
	Page() driver.Page
}

// JobDiscovery expands a listing surface until it stops growing and extracts
// job handles from it.
type JobDiscovery struct {
	pages   PageProvider
	locator *ElementLocator
	cfg     config.DiscoveryConfig
	logger  *zap.Logger

	observations []int
	attempts     int
}

func NewJobDiscovery(pages PageProvider, locator *ElementLocator, cfg config.DiscoveryConfig, logger *zap.Logger) *JobDiscovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 50
	}
	if len(cfg.CardSelectors) == 0 {
		cfg.CardSelectors = DefaultCardSelectors
	}
	return &JobDiscovery{
		pages:   pages,
		locator: locator,
		cfg:     cfg,
		logger:  logger.Named("discovery"),
	}
}

// Search loads filterURL (unless shouldNavigate is false, which re-scans the
// page already loaded), expands it, and returns the handles in document
// order. Handles are only valid until the listing page navigates away.
func (d *JobDiscovery) Search(ctx context.Context, filterURL string, shouldNavigate bool) ([]models.JobHandle, error) {
	page := d.pages.Page()
	if page == nil {
		return nil, errors.New("no page available for discovery")
	}

	if shouldNavigate {
		if filterURL == "" {
			return nil, errors.New("filter URL is required")
		}
		d.logger.Info("Navigating to job listings", zap.String("url", filterURL))
		if err := page.Goto(ctx, filterURL); err != nil {
			return nil, fmt.Errorf("failed to navigate to listings: %w", err)
		}
		if err := page.WaitForLoad(ctx); err != nil {
			return nil, fmt.Errorf("listings did not load: %w", err)
		}
	}

	if err := d.expand(ctx, page); err != nil {
		return nil, err
	}

	handles, err := d.extract(ctx, page)
	if err != nil {
		return nil, err
	}
	d.logger.Info("Discovery pass complete",
		zap.Int("jobs", len(handles)),
		zap.Int("attempts", d.attempts))
	return handles, nil
}

// Observations returns the card counts seen during the last pass, starting
// with the count before any load-more attempt.
func (d *JobDiscovery) Observations() []int {
	out := make([]int, len(d.observations))
	copy(out, d.observations)
	return out
}

// Attempts reports how many load-more attempts the last pass made.
func (d *JobDiscovery) Attempts() int { return d.attempts }

func (d *JobDiscovery) expand(ctx context.Context, page driver.Page) error {
	d.observations = d.observations[:0]
	d.attempts = 0

	best := d.count(ctx, page)
	d.observations = append(d.observations, best)

	stale := 0
	for d.attempts < d.cfg.MaxAttempts && stale < 2 {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.attempts++

		if el, ok := d.locator.Locate(ctx, page, IntentLoadMore); ok {
			if err := el.Click(ctx); err != nil {
				d.logger.Debug("Load-more click failed, scrolling instead", zap.Error(err))
				_ = page.ScrollToBottom(ctx)
			}
		} else if err := page.ScrollToBottom(ctx); err != nil {
			d.logger.Debug("Scroll failed", zap.Error(err))
		}

		if err := sleepCtx(ctx, d.cfg.SettleDelay); err != nil {
			return err
		}

		n := d.count(ctx, page)
		if n > best {
			best = n
			stale = 0
		} else {
			stale++
		}
		d.observations = append(d.observations, best)
	}
	return nil
}

// count returns the number of cards matched by the first selector with any
// match.
func (d *JobDiscovery) count(ctx context.Context, page driver.Page) int {
	_, els := d.cards(ctx, page)
	return len(els)
}

func (d *JobDiscovery) cards(ctx context.Context, page driver.Page) (string, []driver.Element) {
	for _, sel := range d.cfg.CardSelectors {
		els, err := page.Query(ctx, sel)
		if err == nil && len(els) > 0 {
			return sel, els
		}
	}
	return "", nil
}

func (d *JobDiscovery) extract(ctx context.Context, page driver.Page) ([]models.JobHandle, error) {
	sel, els := d.cards(ctx, page)
	if len(els) == 0 {
		return nil, nil
	}
	d.logger.Debug("Extracting job cards", zap.String("selector", sel), zap.Int("cards", len(els)))

	base, _ := url.Parse(page.URL())
	passID := uuid.NewString()
	seen := map[string]bool{}
	var handles []models.JobHandle

	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		link := cardLink(ctx, el, base)
		if link != "" {
			if seen[link] {
				continue
			}
			seen[link] = true
		}
		h := models.JobHandle{
			Index:  len(handles),
			Title:  cardTitle(ctx, el),
			URL:    link,
			PassID: passID,
		}
		if link == "" {
			h.Element = el
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func cardLink(ctx context.Context, card driver.Element, base *url.URL) string {
	href, _ := card.Attribute(ctx, "href")
	if href == "" {
		if links, err := card.Query(ctx, "a[href]"); err == nil && len(links) > 0 {
			href, _ = links[0].Attribute(ctx, "href")
		}
	}
	return resolveURL(base, href)
}

// resolveURL makes href absolute against base and drops the fragment.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}

func cardTitle(ctx context.Context, card driver.Element) string {
	for _, sel := range cardTitleSelectors {
		if els, err := card.Query(ctx, sel); err == nil && len(els) > 0 {
			if t, _ := els[0].Text(ctx); strings.TrimSpace(t) != "" {
				return firstLine(t)
			}
		}
	}
	if label, _ := card.Attribute(ctx, "aria-label"); label != "" {
		return firstLine(label)
	}
	t, _ := card.Text(ctx)
	return firstLine(t)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
