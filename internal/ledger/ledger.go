// Package ledger merges program records discovered under several queries into one
// record per URL.
package ledger

import (
	"errors"

	"github.com/ppiankov/tcasfees/internal/model"
)

// Outcome tells what an observation did to the ledger
type Outcome int

const (
	// Inserted means the URL was new and its record was stored
	Inserted Outcome = iota
	// Merged means the URL was already known and the query was appended to its keywords
	Merged
	// Dropped means the URL was new but extraction failed; nothing was stored
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

var errNoRecord = errors.New("no record extracted")

// Failure is a candidate that never made it into the ledger
type Failure struct {
	Query     string
	Candidate model.SearchResult
	Err       error
}

// Ledger maps program URL to record, remembering first-insertion order.
// It has a single owner and is not safe for concurrent use.
type Ledger struct {
	records  map[string]*model.ProgramRecord
	order    []string
	failures []Failure
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{records: make(map[string]*model.ProgramRecord)}
}

// Known reports whether url already has a record
func (l *Ledger) Known(url string) bool {
	_, ok := l.records[url]
	return ok
}

// Observe records that query surfaced candidate.
//
// For a known URL the query is appended to the existing keywords and record and
// err are ignored. For a new URL a non-nil err (or a nil record) drops the
// candidate and remembers the failure; otherwise a copy of record is stored with
// keywords [query] and its URL set to the candidate's.
func (l *Ledger) Observe(query string, candidate model.SearchResult, record *model.ProgramRecord, err error) Outcome {
	if existing, ok := l.records[candidate.URL]; ok {
		existing.Keywords = append(existing.Keywords, query)
		return Merged
	}

	if err == nil && record == nil {
		err = errNoRecord
	}
	if err != nil {
		l.failures = append(l.failures, Failure{Query: query, Candidate: candidate, Err: err})
		return Dropped
	}

	stored := record.Clone()
	stored.URL = candidate.URL
	stored.Keywords = []string{query}

	l.records[candidate.URL] = stored
	l.order = append(l.order, candidate.URL)
	return Inserted
}

// Snapshot returns copies of all records in first-insertion order
func (l *Ledger) Snapshot() []*model.ProgramRecord {
	out := make([]*model.ProgramRecord, 0, len(l.order))
	for _, url := range l.order {
		out = append(out, l.records[url].Clone())
	}
	return out
}

// Len returns the number of distinct programs
func (l *Ledger) Len() int {
	return len(l.order)
}

// Failures returns the dropped candidates in observation order
func (l *Ledger) Failures() []Failure {
	return append([]Failure(nil), l.failures...)
}
