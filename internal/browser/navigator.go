// Package browser defines the page navigation capability the scraper drives,
// and provides an HTTP engine (static documents, form emulation) and a headless Chrome engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a navigation or wait exceeds its bound
	ErrTimeout = errors.New("timeout")
	// ErrNotFound is returned when a selector or label matches nothing in a loaded document
	ErrNotFound = errors.New("element not found")
	// ErrClosed is returned by operations on a closed page
	ErrClosed = errors.New("page closed")
	// ErrDisallowed is returned when robots.txt forbids a URL
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// KeyEnter is the key name that submits a search
const KeyEnter = "Enter"

// Anchor is a link harvested from a page
type Anchor struct {
	Text string // Visible text, line breaks preserved between block elements
	Href string // Absolute target address
}

// Browser is a browsing session shared by all pages of a run (cookies, connections)
type Browser interface {
	// NewPage opens an exclusive page handle; callers must Close it
	NewPage(ctx context.Context) (Page, error)

	// Close releases the session
	Close() error
}

// Page is a single document handle
type Page interface {
	// Goto navigates to url, waiting at most timeout
	Goto(ctx context.Context, url string, timeout time.Duration) error

	// WaitFor waits until selector matches at least one element
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Fill replaces the value of the input matched by selector
	Fill(ctx context.Context, selector, value string) error

	// Type appends text to the input matched by selector, one character at a time
	Type(ctx context.Context, selector, text string, delay time.Duration) error

	// Press sends a key to the element that last received input
	Press(ctx context.Context, key string) error

	// Anchors returns every element matched by selector as an Anchor, in document order
	Anchors(ctx context.Context, selector string) ([]Anchor, error)

	// InnerText returns the visible text of the first element matched by selector
	InnerText(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// TextAfterLabel returns the visible text of the element placed right after
	// the element whose text equals label
	TextAfterLabel(ctx context.Context, label string, timeout time.Duration) (string, error)

	// Close releases the page. Safe to call more than once.
	Close() error
}

// Options configure a Browser engine
type Options struct {
	Engine       string // "http" (static documents, the zero value) or "chrome"
	Headless     bool
	PollInterval time.Duration
	HTTP         HTTPOptions
}

// Open starts a browsing session with the configured engine
func Open(ctx context.Context, opts Options) (Browser, error) {
	switch strings.ToLower(opts.Engine) {
	case "", "http":
		b, err := NewHTTPBrowser(opts.HTTP, opts.PollInterval)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "chrome", "chromium":
		b, err := NewChromeBrowser(ctx, opts.Headless)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown browser engine: %s (supported: http, chrome)", opts.Engine)
	}
}

// IsTimeout reports whether err is a bounded-wait expiry
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// withTimeout derives a bounded context; a non-positive timeout keeps the parent
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// asTimeout tags deadline expiries with ErrTimeout
func asTimeout(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", what, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
