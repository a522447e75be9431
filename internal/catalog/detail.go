package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/tcasfees/internal/browser"
	"github.com/ppiankov/tcasfees/internal/fees"
	"github.com/ppiankov/tcasfees/internal/logging"
	"github.com/ppiankov/tcasfees/internal/model"
)

// ExtractionError reports a detail page that could not be opened
type ExtractionError struct {
	Candidate model.SearchResult
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Candidate.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor reads program attributes from detail pages
type Extractor struct {
	browser browser.Browser
	cfg     model.CatalogConfig
}

// NewExtractor creates an extractor for the catalog described by cfg
func NewExtractor(b browser.Browser, cfg model.CatalogConfig) *Extractor {
	return &Extractor{browser: b, cfg: cfg}
}

// Extract opens the candidate's detail page and builds its record.
// Only a failed navigation is an error; missing fields are left nil.
// The returned record has no keywords; the ledger assigns them.
func (e *Extractor) Extract(ctx context.Context, candidate model.SearchResult) (*model.ProgramRecord, error) {
	log := logging.Component("extractor")

	name, university := SplitTitle(candidate.Title)
	record := &model.ProgramRecord{
		ProgramName: name,
		University:  university,
		URL:         candidate.URL,
	}

	page, err := e.browser.NewPage(ctx)
	if err != nil {
		return nil, &ExtractionError{Candidate: candidate, Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() { _ = page.Close() }()

	if err := page.Goto(ctx, candidate.URL, e.cfg.DetailTimeout); err != nil {
		return nil, &ExtractionError{Candidate: candidate, Err: err}
	}

	field := func(label string) *string {
		if label == "" {
			return nil
		}
		text, err := page.TextAfterLabel(ctx, label, e.cfg.FieldTimeout)
		if err != nil {
			log.Debug().Str("url", candidate.URL).Str("label", label).Err(err).Msg("field not available")
			return nil
		}
		return model.StringPtr(strings.TrimSpace(text))
	}

	record.DegreeNameEN = field(e.cfg.Labels.DegreeNameEN)
	record.ProgramType = field(e.cfg.Labels.ProgramType)
	record.RawFeeText = field(e.cfg.Labels.Fee)

	for _, round := range e.cfg.AdmissionRounds {
		if text := field(round); text != nil {
			if record.AdmissionRounds == nil {
				record.AdmissionRounds = make(map[string]string)
			}
			record.AdmissionRounds[round] = *text
		}
	}

	tuition := fees.Normalize(record.RawFeeText, record.ProgramType)
	record.TuitionPerSemester = tuition.PerSemester
	record.TuitionBasis = string(tuition.Basis)

	event := log.Info().
		Str("program", record.ProgramName).
		Str("university", record.University).
		Str("program_type", deref(record.ProgramType)).
		Str("basis", record.TuitionBasis)
	if tuition.Present() {
		event = event.Int("tuition_per_semester", *tuition.PerSemester)
	}
	if tuition.Rule != "" {
		event = event.Str("rule", tuition.Rule)
	}
	event.Msg("extracted program")

	return record, nil
}

// SplitTitle splits a result title into program name and university.
// The first non-blank line is the program, the last one the university when the
// title has more than one line.
func SplitTitle(title string) (name, university string) {
	title = strings.ReplaceAll(title, "\r\n", "\n")
	title = strings.ReplaceAll(title, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(title, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	switch len(lines) {
	case 0:
		return model.NotAvailable, model.NotAvailable
	case 1:
		return lines[0], model.NotAvailable
	default:
		return lines[0], lines[len(lines)-1]
	}
}

func deref(s *string) string {
	if s == nil {
		return model.NotAvailable
	}
	return *s
}
