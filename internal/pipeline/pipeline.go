// Package pipeline runs the scrape: every query is searched, every new candidate
// is extracted once, and the results are merged per program URL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/tcasfees/internal/browser"
	"github.com/ppiankov/tcasfees/internal/catalog"
	"github.com/ppiankov/tcasfees/internal/ledger"
	"github.com/ppiankov/tcasfees/internal/logging"
	"github.com/ppiankov/tcasfees/internal/model"
	"github.com/ppiankov/tcasfees/internal/ratelimit"
)

// Searcher harvests candidates for a query
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// Extractor builds a record from a candidate's detail page
type Extractor interface {
	Extract(ctx context.Context, candidate model.SearchResult) (*model.ProgramRecord, error)
}

// QueryError is a query whose search failed; its candidates were never seen
type QueryError struct {
	Query string
	Err   error
}

// RunResult is everything a run collected, complete or not
type RunResult struct {
	Records     []*model.ProgramRecord
	Queries     []string
	Failures    []ledger.Failure
	QueryErrors []QueryError
	Started     time.Time
	Finished    time.Time
	Interrupted bool // ctx ended before every query was processed
}

// Pipeline sequences search, extraction and merging
type Pipeline struct {
	searcher    Searcher
	extractor   Extractor
	detailDelay time.Duration
	verbose     bool
}

// New creates a pipeline over explicit components
func New(searcher Searcher, extractor Extractor, detailDelay time.Duration) *Pipeline {
	return &Pipeline{searcher: searcher, extractor: extractor, detailDelay: detailDelay}
}

// NewPipeline wires the catalog searcher and extractor on top of one browser session
func NewPipeline(b browser.Browser, cfg *model.Config) *Pipeline {
	p := New(catalog.NewSearcher(b, cfg.Catalog), catalog.NewExtractor(b, cfg.Catalog), cfg.Catalog.DetailDelay)
	p.verbose = cfg.Output.Verbose
	return p
}

// Run processes queries in order, strictly one page at a time.
// Failed searches and failed extractions are recorded and skipped. When ctx ends
// the run stops early and still returns what it collected, with ctx's error.
func (p *Pipeline) Run(ctx context.Context, queries []string) (*RunResult, error) {
	log := logging.Component("pipeline")
	l := ledger.New()
	result := &RunResult{Queries: append([]string(nil), queries...), Started: time.Now()}

	finish := func(err error) (*RunResult, error) {
		result.Records = l.Snapshot()
		result.Failures = l.Failures()
		result.Finished = time.Now()
		result.Interrupted = err != nil
		return result, err
	}

	extracted := 0
	for i, query := range queries {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		fmt.Fprintf(os.Stderr, "→ [%d/%d] Searching: %s\n", i+1, len(queries), query)
		candidates, err := p.searcher.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return finish(ctx.Err())
			}
			log.Warn().Str("query", query).Err(err).Msg("search failed")
			fmt.Fprintf(os.Stderr, "✗ Search failed for %s: %v\n", query, err)
			result.QueryErrors = append(result.QueryErrors, QueryError{Query: query, Err: err})
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ Found %d results for: %s\n", len(candidates), query)

		for _, candidate := range candidates {
			if l.Known(candidate.URL) {
				l.Observe(query, candidate, nil, nil)
				if p.verbose {
					fmt.Fprintf(os.Stderr, "  = %s (already extracted)\n", candidate.URL)
				}
				continue
			}

			if extracted > 0 {
				if err := ratelimit.Pause(ctx, p.detailDelay); err != nil {
					return finish(err)
				}
			}
			extracted++

			record, err := p.extractor.Extract(ctx, candidate)
			if err != nil && ctx.Err() != nil {
				return finish(ctx.Err())
			}

			switch l.Observe(query, candidate, record, err) {
			case ledger.Inserted:
				fmt.Fprintf(os.Stderr, "  ✓ %s | %s | %s\n", record.ProgramName, record.University, tuitionLabel(record))
			case ledger.Dropped:
				log.Warn().Str("query", query).Str("url", candidate.URL).Str("title", candidate.Title).Err(err).Msg("extraction failed")
				fmt.Fprintf(os.Stderr, "  ✗ %s: %v\n", candidate.URL, err)
			}
		}
	}

	return finish(nil)
}

func tuitionLabel(r *model.ProgramRecord) string {
	if r.TuitionPerSemester == nil {
		return "tuition n/a"
	}
	return fmt.Sprintf("%d THB/semester", *r.TuitionPerSemester)
}

// Canceled reports whether err comes from an interrupted run
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
