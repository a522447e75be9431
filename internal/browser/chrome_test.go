package browser

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestXPathLiteral(t *testing.T) {
	require.Equal(t, `"ค่าใช้จ่าย"`, xpathLiteral("ค่าใช้จ่าย"))
	require.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	require.Equal(t, `concat("it's ", '"', "x", '"', "")`, xpathLiteral(`it's "x"`))
}

func TestLabelXPath_IgnoresTrailingColonAndLayout(t *testing.T) {
	want := labelXPath("ประเภทหลักสูตร")
	require.Equal(t, want, labelXPath("ประเภทหลักสูตร :"))
	require.Equal(t, want, labelXPath("  ประเภทหลักสูตร：\n"))

	require.Contains(t, want, `normalize-space(.)="ประเภทหลักสูตร :"`)
	require.Contains(t, want, `/../following-sibling::*[1]`)
	require.NotContains(t, want, "text()")
}

func TestChromePage_EmptyLabel(t *testing.T) {
	p := &chromePage{ctx: context.Background(), cancel: func() {}}
	_, err := p.TextAfterLabel(context.Background(), " : ", time.Second)
	require.ErrorIs(t, err, ErrNotFound)
}

// chromeAvailable skips the test unless a Chrome or Chromium binary is installed
func chromeAvailable(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome or Chromium binary installed")
}

func TestChromePage_LabelsMatchHTTPEngine(t *testing.T) {
	chromeAvailable(t)
	srv := newCatalogServer(t)
	ctx := context.Background()

	cb, err := NewChromeBrowser(ctx, true)
	require.NoError(t, err)
	defer func() { _ = cb.Close() }()

	chrome, err := cb.NewPage(ctx)
	require.NoError(t, err)
	defer func() { _ = chrome.Close() }()
	require.NoError(t, chrome.Goto(ctx, srv.URL+"/programs/1", 10*time.Second))

	static := newTestPage(t, HTTPOptions{})
	require.NoError(t, static.Goto(ctx, srv.URL+"/programs/1", time.Second))

	for _, label := range []string{"ชื่อหลักสูตรภาษาอังกฤษ", "ประเภทหลักสูตร", "ประเภทหลักสูตร :", "ค่าใช้จ่าย"} {
		want, err := static.TextAfterLabel(ctx, label, time.Second)
		require.NoError(t, err, label)

		got, err := chrome.TextAfterLabel(ctx, label, 5*time.Second)
		require.NoError(t, err, label)
		require.Equal(t, want, strings.TrimSpace(got), label)
	}
}
