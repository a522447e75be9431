// Package browsertest provides an in-memory catalog site implementing browser.Browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/tcasfees/internal/browser"
)

// Site is a scripted catalog: a landing page with a search box, result lists per
// query and labeled detail pages per URL.
type Site struct {
	Landing string

	// Results lists the anchors shown for a submitted query. A query with no entry
	// never shows results, so waiting for them times out.
	Results map[string][]browser.Anchor

	// Details maps a detail URL to its label texts
	Details map[string]map[string]string

	// GotoErr fails navigation to the given URLs
	GotoErr map[string]error

	// OnVisit runs after every successful Goto
	OnVisit func(url string)

	mu     sync.Mutex
	opened int
	closed int
	visits []string
	typed  []string
}

// NewSite creates an empty site served from landing
func NewSite(landing string) *Site {
	return &Site{
		Landing: landing,
		Results: map[string][]browser.Anchor{},
		Details: map[string]map[string]string{},
		GotoErr: map[string]error{},
	}
}

// NewPage opens a page on the site
func (s *Site) NewPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return &page{site: s}, nil
}

// Close is a no-op
func (s *Site) Close() error { return nil }

// OpenPages reports pages opened but not yet closed
func (s *Site) OpenPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened - s.closed
}

// Visits lists every URL navigated to, in order
func (s *Site) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

// Typed lists every value typed into an input, in order
func (s *Site) Typed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.typed...)
}

type page struct {
	site      *Site
	url       string
	input     string
	submitted bool
	closed    bool
}

func (p *page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if p.closed {
		return browser.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := p.site.GotoErr[url]; ok {
		return fmt.Errorf("goto %s: %w", url, err)
	}

	p.site.mu.Lock()
	p.site.visits = append(p.site.visits, url)
	p.site.mu.Unlock()

	p.url = url
	p.input = ""
	p.submitted = false
	if p.site.OnVisit != nil {
		p.site.OnVisit(url)
	}
	return nil
}

func (p *page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.closed {
		return browser.ErrClosed
	}
	if p.url != p.site.Landing {
		return fmt.Errorf("wait for %s: %w", selector, browser.ErrNotFound)
	}
	if !p.submitted {
		return nil
	}
	if len(p.site.Results[p.input]) == 0 {
		return fmt.Errorf("wait for %s: %w", selector, browser.ErrTimeout)
	}
	return nil
}

func (p *page) Fill(ctx context.Context, selector, value string) error {
	if p.closed {
		return browser.ErrClosed
	}
	p.input = value
	return nil
}

func (p *page) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if p.closed {
		return browser.ErrClosed
	}
	p.input += text

	p.site.mu.Lock()
	p.site.typed = append(p.site.typed, text)
	p.site.mu.Unlock()
	return nil
}

func (p *page) Press(ctx context.Context, key string) error {
	if p.closed {
		return browser.ErrClosed
	}
	if key == browser.KeyEnter {
		p.submitted = true
	}
	return nil
}

func (p *page) Anchors(ctx context.Context, selector string) ([]browser.Anchor, error) {
	if p.closed {
		return nil, browser.ErrClosed
	}
	if !p.submitted {
		return nil, nil
	}
	return append([]browser.Anchor(nil), p.site.Results[p.input]...), nil
}

func (p *page) InnerText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if p.closed {
		return "", browser.ErrClosed
	}
	return "", fmt.Errorf("inner text %s: %w", selector, browser.ErrNotFound)
}

func (p *page) TextAfterLabel(ctx context.Context, label string, timeout time.Duration) (string, error) {
	if p.closed {
		return "", browser.ErrClosed
	}
	text, ok := p.site.Details[p.url][label]
	if !ok {
		return "", fmt.Errorf("label %s: %w", label, browser.ErrTimeout)
	}
	return text, nil
}

func (p *page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	p.site.mu.Lock()
	p.site.closed++
	p.site.mu.Unlock()
	return nil
}
