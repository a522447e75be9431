// Package fees converts free-text tuition descriptions into a per-semester estimate.
//
// Normalization is an ordered decision list: semester-specific evidence first, then
// whole-program evidence, then a generic numeric fallback. The first rule that matches wins.
package fees

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Basis records which branch of the decision list produced a result
type Basis string

const (
	BasisUnavailable          Basis = "unavailable"            // No fee text, or the "_" placeholder
	BasisPerSemester          Basis = "per_semester"           // Text states a per-semester amount
	BasisWholeProgram         Basis = "whole_program"          // Text states a whole-program amount, divided by SemestersPerProgram
	BasisFallbackWholeProgram Basis = "fallback_whole_program" // Unlabeled large amount on a standard-track program, divided
	BasisFallbackAmount       Basis = "fallback_amount"        // Unlabeled amount taken as-is
	BasisUnclear              Basis = "unclear"                // Text present but no amount found
)

// Heuristic constants. SemestersPerProgram assumes a four-year bachelor's program.
// WholeProgramThreshold and StandardTrackMarker drive the unlabeled-amount heuristic
// and are kept for compatibility with existing data sets; they are not validated business rules.
const (
	SemestersPerProgram   = 8
	WholeProgramThreshold = 50000
	StandardTrackMarker   = "ภาษาไทย ปกติ"
	Placeholder           = "_"
)

// Result is the outcome of normalizing one fee description
type Result struct {
	PerSemester *int
	Basis       Basis
	Rule        string // Matching rule name; empty outside the labeled rules
}

// Present reports whether a tuition figure was derived
func (r Result) Present() bool {
	return r.PerSemester != nil
}

const (
	amount  = `(\d[\d,]*(?:\.\d+)?)`
	term    = `(?:ภาคการศึกษา|ภาคเรียน|เทอม|semester|term)`
	firstOf = `(?:ภาคการศึกษา|ภาคเรียน|เทอม)แรก`
	whole   = `(?:ตลอดหลักสูตร|ทั้งหลักสูตร|entire program|whole program)`
	baht    = `(?:บาท|baht|thb)?`
	per     = `(?:ต่อ|/|per)`
	approx  = `(?:ประมาณ\s*)?`
	flagsCI = `(?i)`

	// duration may sit between a whole-program label and its amount: "ตลอดหลักสูตร 4 ปี 400,000"
	duration = `(?:\d+\s*(?:ปี|years?)\s*)?`
)

// rule is one entry of the decision list
type rule struct {
	name    string
	re      *regexp.Regexp
	basis   Basis
	divisor int
}

var semesterRules = []rule{
	{
		name:  "amount-per-term",
		re:    regexp.MustCompile(flagsCI + amount + `\s*` + baht + `\s*` + per + `\s*(?:หนึ่ง\s*)?` + term),
		basis: BasisPerSemester,
	},
	{
		name:  "term-each-amount",
		re:    regexp.MustCompile(flagsCI + term + `\s*ละ\s*` + approx + amount),
		basis: BasisPerSemester,
	},
	{
		name:  "first-term-amount",
		re:    regexp.MustCompile(firstOf + `\s*` + approx + amount),
		basis: BasisPerSemester,
	},
	{
		name:  "term-parenthesized-amount",
		re:    regexp.MustCompile(flagsCI + term + `\s*(?:ละ)?\s*\(\s*` + approx + amount),
		basis: BasisPerSemester,
	},
}

var wholeProgramRules = []rule{
	{
		name:    "amount-whole-program",
		re:      regexp.MustCompile(flagsCI + amount + `\s*` + baht + `\s*(?:ต่อ\s*)?` + whole),
		basis:   BasisWholeProgram,
		divisor: SemestersPerProgram,
	},
	{
		name:    "whole-program-amount",
		re:      regexp.MustCompile(flagsCI + whole + `\s*` + duration + approx + amount),
		basis:   BasisWholeProgram,
		divisor: SemestersPerProgram,
	},
}

var (
	embeddedURL = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)
	anyAmount   = regexp.MustCompile(`\d[\d,]*`)

	// countUnit follows numbers that count years, installments, times or credits rather than baht
	countUnit = regexp.MustCompile(`(?i)^\s*(?:ปี|งวด|ครั้ง|หน่วยกิต|years?|installments?|times|credits?)`)
)

// Normalize derives tuition per semester from raw fee text.
// programType is only consulted by the unlabeled-amount fallback. Normalize is pure:
// identical inputs always give identical results.
func Normalize(raw, programType *string) Result {
	if raw == nil {
		return Result{Basis: BasisUnavailable}
	}
	pt := ""
	if programType != nil {
		pt = *programType
	}
	return NormalizeText(*raw, pt)
}

// NormalizeText is Normalize for plain strings; an empty raw text is unavailable
func NormalizeText(raw, programType string) Result {
	text := clean(raw)
	if text == "" || text == Placeholder {
		return Result{Basis: BasisUnavailable}
	}

	for _, rules := range [][]rule{semesterRules, wholeProgramRules} {
		for _, r := range rules {
			n, ok := r.find(text)
			if !ok {
				continue
			}
			if r.divisor > 0 {
				n = divideRounded(n, r.divisor)
			}
			return Result{PerSemester: &n, Basis: r.basis, Rule: r.name}
		}
	}

	return fallback(text, programType)
}

// find returns the amount of the first match that is money rather than a count
func (r rule) find(text string) (int, bool) {
	for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
		if countUnit.MatchString(text[m[3]:]) {
			continue
		}
		if n, ok := parseAmount(text[m[2]:m[3]]); ok {
			return n, true
		}
	}
	return 0, false
}

// fallback takes the first usable number outside any embedded URL
func fallback(text, programType string) Result {
	text = embeddedURL.ReplaceAllString(text, " ")

	n, ok := 0, false
	for _, loc := range anyAmount.FindAllStringIndex(text, -1) {
		if countUnit.MatchString(text[loc[1]:]) {
			continue
		}
		v, err := strconv.Atoi(digitsOnly(text[loc[0]:loc[1]]))
		if err != nil {
			continue
		}
		n, ok = v, true
		break
	}
	if !ok {
		return Result{Basis: BasisUnclear}
	}

	if n > WholeProgramThreshold && strings.Contains(programType, StandardTrackMarker) {
		n = divideRounded(n, SemestersPerProgram)
		return Result{PerSemester: &n, Basis: BasisFallbackWholeProgram}
	}

	return Result{PerSemester: &n, Basis: BasisFallbackAmount}
}

// parseAmount strips thousands separators and drops any decimal part
func parseAmount(s string) (int, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// divideRounded rounds half away from zero: 100,004 / 8 gives 12501
func divideRounded(n, d int) int {
	return int(math.Round(float64(n) / float64(d)))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// clean folds Thai digits to ASCII and every Unicode space to a plain space
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '๐' && r <= '๙':
			return '0' + (r - '๐')
		case unicode.IsSpace(r):
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
