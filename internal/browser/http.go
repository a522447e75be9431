package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/tcasfees/internal/cache"
	"github.com/ppiankov/tcasfees/internal/ratelimit"
	"github.com/ppiankov/tcasfees/internal/util"
	"golang.org/x/net/html"
)

// HTTPOptions configure the http engine
type HTTPOptions struct {
	Fetcher FetcherOptions

	// SearchURL is used when Enter is pressed in an input that has no enclosing form.
	// "{query}" is replaced by the escaped input value.
	SearchURL string

	// Pages caches GET responses; nil disables caching
	Pages    cache.Cache
	PagesTTL time.Duration

	RespectRobots     bool
	RequestsPerSecond float64
	Burst             int
}

// HTTPBrowser loads static documents over HTTP and emulates form input.
// All pages share one cookie jar, rate limiter and page cache.
type HTTPBrowser struct {
	fetcher   *Fetcher
	robots    *util.RobotsChecker
	limiter   *ratelimit.Limiter
	pages     cache.Cache
	pagesTTL  time.Duration
	searchURL string
	poll      time.Duration
}

// NewHTTPBrowser creates the http engine
func NewHTTPBrowser(opts HTTPOptions, pollInterval time.Duration) (*HTTPBrowser, error) {
	fetcher, err := NewFetcher(opts.Fetcher)
	if err != nil {
		return nil, err
	}

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	b := &HTTPBrowser{
		fetcher:   fetcher,
		pages:     opts.Pages,
		pagesTTL:  opts.PagesTTL,
		searchURL: opts.SearchURL,
		poll:      pollInterval,
	}
	if opts.RespectRobots {
		b.robots = util.NewRobotsChecker(fetcher.Client(), opts.Fetcher.UserAgent, opts.Fetcher.Timeout)
	}
	if opts.RequestsPerSecond > 0 {
		b.limiter = ratelimit.New(opts.RequestsPerSecond, opts.Burst)
	}

	return b, nil
}

// NewPage opens a blank page
func (b *HTTPBrowser) NewPage(ctx context.Context) (Page, error) {
	return &httpPage{browser: b, values: map[string]string{}}, nil
}

// Close releases pooled connections
func (b *HTTPBrowser) Close() error {
	b.fetcher.Close()
	return nil
}

type httpPage struct {
	browser *HTTPBrowser
	last    Request
	url     *url.URL
	doc     *goquery.Document
	values  map[string]string // selector -> typed value
	focus   string            // selector that last received input
	closed  bool
}

func (p *httpPage) Goto(ctx context.Context, rawURL string, timeout time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	return asTimeout(p.load(ctx, Request{Method: http.MethodGet, URL: rawURL}, true), "goto "+rawURL)
}

func (p *httpPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	for {
		if p.doc != nil && p.doc.Find(selector).Length() > 0 {
			return nil
		}
		if p.url == nil {
			return fmt.Errorf("wait for %s: %w", selector, ErrNotFound)
		}

		select {
		case <-ctx.Done():
			return asTimeout(ctx.Err(), "wait for "+selector)
		case <-time.After(p.browser.poll):
		}

		// Static documents only change when reloaded
		if err := p.load(ctx, p.last, false); err != nil {
			if ctx.Err() != nil {
				return asTimeout(ctx.Err(), "wait for "+selector)
			}
			return fmt.Errorf("wait for %s: %w", selector, err)
		}
	}
}

func (p *httpPage) Fill(ctx context.Context, selector, value string) error {
	if _, err := p.input(selector); err != nil {
		return err
	}
	p.values[selector] = value
	p.focus = selector
	return nil
}

func (p *httpPage) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if _, err := p.input(selector); err != nil {
		return err
	}
	p.focus = selector

	for _, r := range text {
		p.values[selector] += string(r)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return asTimeout(ctx.Err(), "type")
		case <-time.After(delay):
		}
	}
	return nil
}

func (p *httpPage) Press(ctx context.Context, key string) error {
	if p.closed {
		return ErrClosed
	}
	if key != KeyEnter {
		return fmt.Errorf("press %s: unsupported key for http engine", key)
	}
	if p.focus == "" {
		return fmt.Errorf("press %s: no focused input", key)
	}

	req, err := p.submission()
	if err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return asTimeout(p.load(ctx, req, true), "submit "+req.URL)
}

func (p *httpPage) Anchors(ctx context.Context, selector string) ([]Anchor, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.doc == nil {
		return nil, fmt.Errorf("anchors %s: %w", selector, ErrNotFound)
	}

	var anchors []Anchor
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href := p.resolve(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		anchors = append(anchors, Anchor{
			Text: innerText(s.Get(0)),
			Href: href,
		})
	})
	return anchors, nil
}

func (p *httpPage) InnerText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if p.closed {
		return "", ErrClosed
	}
	if p.doc == nil {
		return "", fmt.Errorf("inner text %s: %w", selector, ErrNotFound)
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("inner text %s: %w", selector, ErrNotFound)
	}
	return innerText(sel.Get(0)), nil
}

func (p *httpPage) TextAfterLabel(ctx context.Context, label string, timeout time.Duration) (string, error) {
	if p.closed {
		return "", ErrClosed
	}
	if p.doc == nil {
		return "", fmt.Errorf("label %s: %w", label, ErrNotFound)
	}

	labelNode := findLabel(p.doc.Get(0), label)
	if labelNode == nil {
		return "", fmt.Errorf("label %s: %w", label, ErrNotFound)
	}

	// The value sits right after the label, or right after the label's wrapper
	for n, depth := labelNode, 0; n != nil && depth < 3; n, depth = n.Parent, depth+1 {
		if next := nextElement(n); next != nil {
			return innerText(next), nil
		}
	}
	return "", fmt.Errorf("value after label %s: %w", label, ErrNotFound)
}

func (p *httpPage) Close() error {
	p.closed = true
	p.doc = nil
	p.values = nil
	return nil
}

func (p *httpPage) input(selector string) (*goquery.Selection, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.doc == nil {
		return nil, fmt.Errorf("input %s: %w", selector, ErrNotFound)
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("input %s: %w", selector, ErrNotFound)
	}
	return sel, nil
}

// submission builds the request Enter would send from the focused input
func (p *httpPage) submission() (Request, error) {
	input, err := p.input(p.focus)
	if err != nil {
		return Request{}, err
	}

	form := input.Closest("form")
	if form.Length() == 0 {
		if p.browser.searchURL == "" || !strings.Contains(p.browser.searchURL, "{query}") {
			return Request{}, fmt.Errorf("input %s has no form and no search URL is configured", p.focus)
		}
		target := strings.ReplaceAll(p.browser.searchURL, "{query}", url.QueryEscape(p.values[p.focus]))
		return Request{Method: http.MethodGet, URL: target}, nil
	}

	values := formValues(form)
	for selector, v := range p.values {
		el := p.doc.Find(selector).First()
		name := el.AttrOr("name", "")
		if name == "" || el.Closest("form").Get(0) != form.Get(0) {
			continue
		}
		values.Set(name, v)
	}

	action := p.resolve(form.AttrOr("action", ""))
	if action == "" {
		action = p.url.String()
	}

	if strings.EqualFold(form.AttrOr("method", "get"), http.MethodPost) {
		return Request{Method: http.MethodPost, URL: action, Form: values}, nil
	}

	target, err := url.Parse(action)
	if err != nil {
		return Request{}, fmt.Errorf("parse form action: %w", err)
	}
	target.RawQuery = values.Encode()
	return Request{Method: http.MethodGet, URL: target.String()}, nil
}

// formValues collects the default successful controls of a form
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		switch goquery.NodeName(s) {
		case "textarea":
			values.Add(name, s.Text())
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = s.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		default:
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); !checked {
					return
				}
				values.Add(name, s.AttrOr("value", "on"))
			default:
				values.Add(name, s.AttrOr("value", ""))
			}
		}
	})
	return values
}

// resolve turns an href into an absolute http(s) address, or "" when it is not navigable
func (p *httpPage) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if p.url != nil {
		ref = p.url.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func (p *httpPage) load(ctx context.Context, req Request, useCache bool) error {
	b := p.browser

	if b.robots != nil {
		decision, err := b.robots.Check(ctx, req.URL)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return fmt.Errorf("%s: %w", req.URL, ErrDisallowed)
		}
		if b.limiter != nil && decision.CrawlDelay > 0 {
			if u, err := url.Parse(req.URL); err == nil {
				b.limiter.ApplyCrawlDelay(u.Host, decision.CrawlDelay)
			}
		}
	}

	cacheable := b.pages != nil && req.Method == http.MethodGet
	key := cache.PageKey(req.URL)

	var body []byte
	finalURL := req.URL
	if cacheable && useCache {
		if cached, ok := b.pages.Get(key); ok {
			body = cached
		}
	}

	if body == nil {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx, req.URL); err != nil {
				return err
			}
		}

		result, err := b.fetcher.FetchWithRetry(ctx, req)
		if err != nil {
			return err
		}
		body = result.HTML
		finalURL = result.FinalURL

		if cacheable {
			_ = b.pages.Set(key, body, b.pagesTTL)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	p.last = req
	p.url = u
	p.doc = doc
	p.values = map[string]string{}
	p.focus = ""
	return nil
}

// findLabel returns the innermost element whose whole text equals label
func findLabel(root *html.Node, label string) *html.Node {
	want := labelKey(label)
	if want == "" {
		return nil
	}

	// Fast path: a single text node carrying the label
	var found *html.Node
	var walkText func(*html.Node) bool
	walkText = func(n *html.Node) bool {
		if n.Type == html.TextNode && n.Parent != nil && n.Parent.Type == html.ElementNode &&
			labelKey(n.Data) == want && labelKey(innerText(n.Parent)) == want {
			found = n.Parent
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walkText(c) {
				return true
			}
		}
		return false
	}
	if walkText(root) {
		return found
	}

	// Slow path: label split across inline children
	var walkElem func(*html.Node) *html.Node
	walkElem = func(n *html.Node) *html.Node {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if m := walkElem(c); m != nil {
				return m
			}
			if labelKey(innerText(c)) == want {
				return c
			}
		}
		return nil
	}
	return walkElem(root)
}

// labelKey compares labels independent of layout whitespace and trailing colons
func labelKey(s string) string {
	return strings.TrimRight(normalizeLabel(s), " :：")
}
