package model

// NotAvailable is the university placeholder used when a search result title has a single line
const NotAvailable = "N/A"

// SearchResult is one candidate harvested from a catalog search results page
type SearchResult struct {
	Title string `json:"title"` // Raw anchor text, may span several lines (program name, campus, university)
	URL   string `json:"url"`   // Absolute detail page address
}

// ProgramRecord is the persisted description of one academic program
type ProgramRecord struct {
	ProgramName        string            `json:"program_name"`
	University         string            `json:"university"`
	URL                string            `json:"url"` // Identity key
	DegreeNameEN       *string           `json:"degree_name_en"`
	ProgramType        *string           `json:"program_type"`
	TuitionPerSemester *int              `json:"tuition_per_semester"`
	TuitionBasis       string            `json:"tuition_basis"` // How the tuition figure was derived (see fees.Basis)
	RawFeeText         *string           `json:"raw_fee_text"`
	AdmissionRounds    map[string]string `json:"admission_rounds,omitempty"`
	Keywords           []string          `json:"keywords"` // Queries that surfaced this program, in query order
}

// Clone returns a deep copy of the record
func (r *ProgramRecord) Clone() *ProgramRecord {
	if r == nil {
		return nil
	}

	c := *r
	c.DegreeNameEN = cloneString(r.DegreeNameEN)
	c.ProgramType = cloneString(r.ProgramType)
	c.RawFeeText = cloneString(r.RawFeeText)
	if r.TuitionPerSemester != nil {
		v := *r.TuitionPerSemester
		c.TuitionPerSemester = &v
	}
	if r.AdmissionRounds != nil {
		c.AdmissionRounds = make(map[string]string, len(r.AdmissionRounds))
		for k, v := range r.AdmissionRounds {
			c.AdmissionRounds[k] = v
		}
	}
	c.Keywords = append([]string(nil), r.Keywords...)

	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
