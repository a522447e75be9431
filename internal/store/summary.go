package store

import (
	"sort"

	"github.com/ppiankov/tcasfees/internal/model"
)

// Summary aggregates a record set. Records without tuition are counted but
// excluded from every average.
type Summary struct {
	Programs       int
	WithTuition    int
	AverageTuition float64
	Universities   []UniversityStat // highest average tuition first
	ProgramTypes   []Count          // most frequent first
	Bases          []Count          // most frequent first
	Keywords       []Count          // most frequent first
}

// UniversityStat is the tuition average of one university
type UniversityStat struct {
	Name           string
	Programs       int
	WithTuition    int
	AverageTuition float64
}

// Count is a label with its number of occurrences
type Count struct {
	Label string
	Count int
}

// Summarize groups records by university, program type, tuition basis and keyword
func Summarize(records []*model.ProgramRecord) Summary {
	var sum Summary
	var total float64

	type acc struct {
		programs, withTuition int
		total                 float64
	}
	byUniversity := map[string]*acc{}
	types := map[string]int{}
	bases := map[string]int{}
	keywords := map[string]int{}

	for _, r := range records {
		sum.Programs++

		u := byUniversity[r.University]
		if u == nil {
			u = &acc{}
			byUniversity[r.University] = u
		}
		u.programs++

		if r.TuitionPerSemester != nil {
			sum.WithTuition++
			total += float64(*r.TuitionPerSemester)
			u.withTuition++
			u.total += float64(*r.TuitionPerSemester)
		}

		programType := model.NotAvailable
		if r.ProgramType != nil {
			programType = *r.ProgramType
		}
		types[programType]++

		if r.TuitionBasis != "" {
			bases[r.TuitionBasis]++
		}

		seen := map[string]bool{}
		for _, k := range r.Keywords {
			if !seen[k] {
				seen[k] = true
				keywords[k]++
			}
		}
	}

	if sum.WithTuition > 0 {
		sum.AverageTuition = total / float64(sum.WithTuition)
	}

	for name, u := range byUniversity {
		stat := UniversityStat{Name: name, Programs: u.programs, WithTuition: u.withTuition}
		if u.withTuition > 0 {
			stat.AverageTuition = u.total / float64(u.withTuition)
		}
		sum.Universities = append(sum.Universities, stat)
	}
	sort.Slice(sum.Universities, func(i, j int) bool {
		a, b := sum.Universities[i], sum.Universities[j]
		if a.AverageTuition != b.AverageTuition {
			return a.AverageTuition > b.AverageTuition
		}
		return a.Name < b.Name
	})

	sum.ProgramTypes = sortedCounts(types)
	sum.Bases = sortedCounts(bases)
	sum.Keywords = sortedCounts(keywords)
	return sum
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for label, n := range m {
		out = append(out, Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
