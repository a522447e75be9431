package ledger

import (
	"errors"
	"testing"

	"github.com/ppiankov/tcasfees/internal/model"
	"github.com/stretchr/testify/require"
)

func candidate(url string) model.SearchResult {
	return model.SearchResult{Title: "program\nuniversity", URL: url}
}

func record(name string) *model.ProgramRecord {
	tuition := 15000
	return &model.ProgramRecord{ProgramName: name, University: "u", URL: "ignored", TuitionPerSemester: &tuition}
}

func TestObserve_MergeLaw(t *testing.T) {
	l := New()

	require.Equal(t, Inserted, l.Observe("Q1", candidate("https://x/1"), record("p1"), nil))
	require.True(t, l.Known("https://x/1"))
	require.Equal(t, Merged, l.Observe("Q2", candidate("https://x/1"), nil, nil))

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, []string{"Q1", "Q2"}, snap[0].Keywords)
	require.Equal(t, "https://x/1", snap[0].URL, "record URL comes from the candidate")
}

func TestObserve_RepeatedQueryKeepsDuplicates(t *testing.T) {
	l := New()
	l.Observe("Q", candidate("https://x/1"), record("p1"), nil)
	l.Observe("Q", candidate("https://x/1"), record("p1 again"), nil)

	snap := l.Snapshot()
	require.Equal(t, []string{"Q", "Q"}, snap[0].Keywords)
	require.Equal(t, "p1", snap[0].ProgramName, "first record wins")
}

func TestObserve_FailureDropsCandidate(t *testing.T) {
	l := New()
	cause := errors.New("navigation failed")

	require.Equal(t, Dropped, l.Observe("Q1", candidate("https://x/bad"), nil, cause))
	require.Equal(t, Dropped, l.Observe("Q1", candidate("https://x/empty"), nil, nil))
	require.False(t, l.Known("https://x/bad"))
	require.Zero(t, l.Len())
	require.Empty(t, l.Snapshot())

	failures := l.Failures()
	require.Len(t, failures, 2)
	require.Equal(t, "https://x/bad", failures[0].Candidate.URL)
	require.ErrorIs(t, failures[0].Err, cause)
	require.ErrorIs(t, failures[1].Err, errNoRecord)

	// A later successful observation of a dropped URL is inserted normally
	require.Equal(t, Inserted, l.Observe("Q2", candidate("https://x/bad"), record("retry"), nil))
	require.Equal(t, []string{"Q2"}, l.Snapshot()[0].Keywords)
}

func TestSnapshot_InsertionOrderAndIsolation(t *testing.T) {
	l := New()
	for _, u := range []string{"https://x/3", "https://x/1", "https://x/2"} {
		l.Observe("Q", candidate(u), record(u), nil)
	}
	l.Observe("Q2", candidate("https://x/1"), nil, nil)

	snap := l.Snapshot()
	var urls []string
	for _, r := range snap {
		urls = append(urls, r.URL)
	}
	require.Equal(t, []string{"https://x/3", "https://x/1", "https://x/2"}, urls)

	snap[0].Keywords[0] = "mutated"
	*snap[0].TuitionPerSemester = -1
	again := l.Snapshot()
	require.Equal(t, "Q", again[0].Keywords[0])
	require.Equal(t, 15000, *again[0].TuitionPerSemester)
}

func TestObserve_StoresCopy(t *testing.T) {
	l := New()
	r := record("p")
	l.Observe("Q", candidate("https://x/1"), r, nil)

	r.ProgramName = "changed"
	require.Equal(t, "p", l.Snapshot()[0].ProgramName)
}

func TestUniqueURLs(t *testing.T) {
	l := New()
	queries := []string{"a", "b", "c"}
	urls := []string{"https://x/1", "https://x/2", "https://x/1", "https://x/3", "https://x/2"}
	for _, q := range queries {
		for _, u := range urls {
			l.Observe(q, candidate(u), record(u), nil)
		}
	}

	seen := map[string]bool{}
	for _, r := range l.Snapshot() {
		require.False(t, seen[r.URL], "duplicate url %s", r.URL)
		seen[r.URL] = true
		require.NotEmpty(t, r.Keywords)
	}
	require.Equal(t, 3, l.Len())
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "inserted", Inserted.String())
	require.Equal(t, "merged", Merged.String())
	require.Equal(t, "dropped", Dropped.String())
}
