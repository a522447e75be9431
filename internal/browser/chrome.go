package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromeBrowser drives a local Chrome or Chromium through the DevTools protocol.
// Use it when the catalog renders results with script.
type ChromeBrowser struct {
	ctx         context.Context // browser context, parent of every tab
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewChromeBrowser launches the browser process
func NewChromeBrowser(ctx context.Context, headless bool) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("lang", "th-TH"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// First Run starts the process
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	return &ChromeBrowser{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// NewPage opens a new tab
func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

// Close shuts the browser process down
func (b *ChromeBrowser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	focus  string
}

// run executes actions on the tab bounded by timeout and by the caller's ctx
func (p *chromePage) run(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrClosed
	}
	tctx, cancel := withTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%s: %w", what, ctx.Err())
	}
	return asTimeout(err, what)
}

func (p *chromePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return p.run(ctx, timeout, "goto "+url, chromedp.Navigate(url))
}

func (p *chromePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, "wait for "+selector, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	p.focus = selector
	return p.run(ctx, 0, "fill "+selector,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
	)
}

func (p *chromePage) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	p.focus = selector
	actions := []chromedp.Action{chromedp.Focus(selector, chromedp.ByQuery)}
	for _, r := range text {
		actions = append(actions, chromedp.SendKeys(selector, string(r), chromedp.ByQuery))
		if delay > 0 {
			actions = append(actions, chromedp.Sleep(delay))
		}
	}
	return p.run(ctx, 0, "type "+selector, actions...)
}

func (p *chromePage) Press(ctx context.Context, key string) error {
	if key != KeyEnter {
		return p.run(ctx, 0, "press "+key, chromedp.KeyEvent(key))
	}
	return p.run(ctx, 0, "press "+key, chromedp.KeyEvent(kb.Enter))
}

func (p *chromePage) Anchors(ctx context.Context, selector string) ([]Anchor, error) {
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(a => ({text: a.innerText || "", href: a.href || ""}))`,
		strconv.Quote(selector))

	var raw []Anchor
	if err := p.run(ctx, 0, "anchors "+selector, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, err
	}

	anchors := raw[:0]
	for _, a := range raw {
		if a.Href == "" || strings.HasPrefix(a.Href, "javascript:") {
			continue
		}
		anchors = append(anchors, a)
	}
	return anchors, nil
}

func (p *chromePage) InnerText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	var text string
	err := p.run(ctx, timeout, "inner text "+selector, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

func (p *chromePage) TextAfterLabel(ctx context.Context, label string, timeout time.Duration) (string, error) {
	if labelKey(label) == "" {
		return "", fmt.Errorf("label %q: %w", label, ErrNotFound)
	}

	var text string
	err := p.run(ctx, timeout, "label "+label, chromedp.Text(labelXPath(label), &text, chromedp.BySearch))
	return text, err
}

func (p *chromePage) Close() error {
	p.once.Do(p.cancel)
	return nil
}

// labelXPath selects the element after the innermost element whose whole text is label,
// trailing colons ignored, or after one of its two nearest ancestors. It mirrors the http engine.
func labelXPath(label string) string {
	want := labelKey(label)

	var alts []string
	for _, suffix := range []string{"", ":", " :", "：", " ："} {
		alts = append(alts, "normalize-space(.)="+xpathLiteral(want+suffix))
	}
	match := strings.Join(alts, " or ")
	el := fmt.Sprintf("//*[not(self::script or self::style) and (%s) and not(*[%s])]", match, match)

	return fmt.Sprintf("(%s/following-sibling::*[1] | %s/../following-sibling::*[1] | %s/../../following-sibling::*[1])[1]",
		el, el, el)
}

// xpathLiteral quotes s for use inside an XPath expression
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = `"` + part + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}
