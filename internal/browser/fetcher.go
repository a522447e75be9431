package browser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/ppiankov/tcasfees/internal/util"
)

const defaultMaxRetries = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// transportError marks failures below HTTP (dial, reset, TLS)
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "fetch: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// FetcherOptions configure the HTTP client behind the http engine
type FetcherOptions struct {
	Timeout          time.Duration
	UserAgent        string
	MaxBytes         int64
	MaxRetries       int
	InsecureTLS      bool
	HTTPProxy        string
	HTTPSProxy       string
	NoProxy          string
	CloudflareBypass bool
}

// Fetcher fetches HTML documents with a shared cookie jar
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxRetries int
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	proxy, err := util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy)
	if err != nil {
		return nil, err
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureTLS},
	}
	if opts.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent:  opts.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: maxRetries,
	}, nil
}

// Request describes one document load; a non-nil Form is sent as a POST body
type Request struct {
	Method string
	URL    string
	Form   url.Values
}

// FetchResult contains the fetched HTML and the final address after redirects
type FetchResult struct {
	HTML       []byte
	StatusCode int
	FinalURL   string
}

// Fetch performs a single request
func (f *Fetcher) Fetch(ctx context.Context, r Request) (*FetchResult, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodPost && r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "th,en-US;q=0.8,en;q=0.6")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch: %w", ctx.Err())
		}
		return nil, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{
		HTML:       html,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// FetchWithRetry retries transient failures (5xx, 429, transport errors) with linear backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, r Request) (*FetchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		result, err := f.Fetch(ctx, r)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || attempt == f.maxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}
		fetchSleepFunc(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return nil, lastErr
}

// isRetryableFetchError reports whether another attempt could succeed
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	var tErr *transportError
	return errors.As(err, &tErr)
}

// Client exposes the underlying client so robots.txt goes through the same proxy and jar
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// Close drops idle connections
func (f *Fetcher) Close() {
	f.httpClient.CloseIdleConnections()
}
