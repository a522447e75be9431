// Package catalog drives a browser through the course catalog: it submits searches
// and reads labeled fields from program detail pages.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/tcasfees/internal/browser"
	"github.com/ppiankov/tcasfees/internal/model"
)

// Searcher submits queries through the catalog's search box
type Searcher struct {
	browser browser.Browser
	cfg     model.CatalogConfig
}

// NewSearcher creates a searcher for the catalog described by cfg
func NewSearcher(b browser.Browser, cfg model.CatalogConfig) *Searcher {
	return &Searcher{browser: b, cfg: cfg}
}

// Search types query into the landing page's search box and harvests the result
// links in document order. A result list that never appears yields an error
// wrapping browser.ErrTimeout.
func (s *Searcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.Goto(ctx, s.cfg.LandingURL, s.cfg.LandingTimeout); err != nil {
		return nil, fmt.Errorf("open landing page: %w", err)
	}
	if err := page.WaitFor(ctx, s.cfg.SearchInput, s.cfg.LandingTimeout); err != nil {
		return nil, fmt.Errorf("wait for search input: %w", err)
	}

	// The site searches incrementally, so the query is typed rather than set
	if err := page.Fill(ctx, s.cfg.SearchInput, ""); err != nil {
		return nil, fmt.Errorf("clear search input: %w", err)
	}
	if err := page.Type(ctx, s.cfg.SearchInput, query, s.cfg.KeyDelay); err != nil {
		return nil, fmt.Errorf("type query: %w", err)
	}
	if err := page.Press(ctx, browser.KeyEnter); err != nil {
		return nil, fmt.Errorf("submit query: %w", err)
	}

	if err := page.WaitFor(ctx, s.cfg.ResultAnchor, s.cfg.ResultTimeout); err != nil {
		return nil, fmt.Errorf("wait for results: %w", err)
	}

	anchors, err := page.Anchors(ctx, s.cfg.ResultAnchor)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	results := make([]model.SearchResult, 0, len(anchors))
	for _, a := range anchors {
		if a.Href == "" {
			continue
		}
		results = append(results, model.SearchResult{
			Title: strings.TrimSpace(a.Text),
			URL:   a.Href,
		})
	}
	return results, nil
}
