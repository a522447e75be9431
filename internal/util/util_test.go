package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAgentToken(t *testing.T) {
	require.Equal(t, "tcasfees", AgentToken("tcasfees/0.1 (+https://github.com/ppiankov/tcasfees)"))
	require.Equal(t, "curl", AgentToken("curl"))
	require.Equal(t, "", AgentToken(""))
}

func TestRobotsChecker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			_, _ = w.Write([]byte("User-agent: tcasfees\nDisallow: /private\nCrawl-delay: 2\n\nUser-agent: *\nDisallow: /\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRobotsChecker(nil, "tcasfees/0.1", time.Second)
	ctx := context.Background()

	d, err := r.Check(ctx, srv.URL+"/search?q=x")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 2*time.Second, d.CrawlDelay)

	d, err = r.Check(ctx, srv.URL+"/private/page")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, int32(1), hits.Load(), "robots.txt is fetched once per host")
}

func TestRobotsChecker_CanceledFetchNotRemembered(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	r := NewRobotsChecker(srv.Client(), "tcasfees", time.Second)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := r.Check(canceled, srv.URL+"/private/page")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, int32(0), hits.Load())

	d, err = r.Check(context.Background(), srv.URL+"/private/page")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, int32(1), hits.Load())
}

func TestRobotsChecker_ServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	r := NewRobotsChecker(srv.Client(), "tcasfees", time.Second)
	ctx := context.Background()

	_, err := r.Check(ctx, srv.URL+"/public")
	require.NoError(t, err)

	d, err := r.Check(ctx, srv.URL+"/private/page")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = r.Check(ctx, srv.URL+"/public")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, int32(2), hits.Load(), "a good answer is remembered once fetched")
}

func TestRobotsChecker_MissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewRobotsChecker(srv.Client(), "tcasfees", time.Second)
	d, err := r.Check(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestNewProxyFunc(t *testing.T) {
	proxy, err := NewProxyFunc("http://proxy.local:3128", "http://secure.local:3129", "example.org, .internal")
	require.NoError(t, err)

	get := func(raw string) *url.URL {
		u, _ := url.Parse(raw)
		p, err := proxy(&http.Request{URL: u})
		require.NoError(t, err)
		return p
	}

	require.Equal(t, "proxy.local:3128", get("http://course.mytcas.com/").Host)
	require.Equal(t, "secure.local:3129", get("https://course.mytcas.com/").Host)
	require.Nil(t, get("https://www.example.org/"))
	require.Nil(t, get("http://svc.internal/"))

	_, err = NewProxyFunc("://bad", "", "")
	require.Error(t, err)
}
