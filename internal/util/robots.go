package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsDecision is the robots.txt verdict for one address
type RobotsDecision struct {
	Allowed    bool
	CrawlDelay time.Duration
}

// RobotsChecker fetches robots.txt once per host and answers path queries against it
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

// NewRobotsChecker creates a checker that identifies itself with userAgent.
// A nil client uses a plain client with the given timeout.
func NewRobotsChecker(client *http.Client, userAgent string, timeout time.Duration) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string]*robotstxt.Group),
	}
}

// Check reports whether rawURL may be fetched.
// An unreachable or malformed robots.txt allows everything. Only answers from a
// reachable server below 500 are remembered; transport failures and 5xx are retried
// on the next check.
func (r *RobotsChecker) Check(ctx context.Context, rawURL string) (RobotsDecision, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return RobotsDecision{}, fmt.Errorf("parse URL: %w", err)
	}

	group := r.group(ctx, parsed)
	if group == nil {
		return RobotsDecision{Allowed: true}, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return RobotsDecision{Allowed: group.Test(path), CrawlDelay: group.CrawlDelay}, nil
}

func (r *RobotsChecker) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.hosts[key]; ok {
		return g
	}

	data, final, err := r.fetch(ctx, key+"/robots.txt")
	var g *robotstxt.Group
	if err == nil {
		g = data.FindGroup(AgentToken(r.userAgent))
	}
	if final {
		r.hosts[key] = g
	}
	return g
}

// fetch loads robots.txt; final is false when another attempt could give a different answer
func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (data *robotstxt.RobotsData, final bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, true, err
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	return data, resp.StatusCode < 500, err
}

// AgentToken reduces a User-Agent header to the product token robots.txt groups match on
func AgentToken(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return ua
	}
	return strings.SplitN(parts[0], "/", 2)[0]
}
