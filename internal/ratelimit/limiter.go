// Package ratelimit spaces out requests per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per host
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	crawlSet map[string]bool
}

// New creates a limiter allowing requestsPerSecond per host.
// A non-positive rate disables limiting.
func New(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	rps := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		rps = rate.Inf
	}
	return &Limiter{
		hosts:    make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		crawlSet: make(map[string]bool),
	}
}

// Wait blocks until a request to rawURL may proceed
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.bucket(host).Wait(ctx)
}

// Allow reports whether a request to rawURL may proceed now, consuming a token if so
func (l *Limiter) Allow(rawURL string) bool {
	host, err := hostOf(rawURL)
	if err != nil {
		return false
	}
	return l.bucket(host).Allow()
}

// ApplyCrawlDelay slows host down to one request per delay when that is stricter
// than the configured rate. Only the first call per host has an effect.
func (l *Limiter) ApplyCrawlDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	host = strings.ToLower(host)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.crawlSet[host] {
		return
	}
	l.crawlSet[host] = true

	limit := rate.Every(delay)
	if limit < l.rps {
		l.hosts[host] = rate.NewLimiter(limit, 1)
	}
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.hosts[host] = b
	}
	return b
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}
	return strings.ToLower(u.Host), nil
}

// Pause sleeps for d unless ctx ends first
func Pause(ctx context.Context, d time.Duration) error {
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
