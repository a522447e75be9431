package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/tcasfees/internal/model"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func sampleRecords() []*model.ProgramRecord {
	return []*model.ProgramRecord{
		{
			ProgramName:        "วิศวกรรมคอมพิวเตอร์",
			University:         "จุฬาลงกรณ์มหาวิทยาลัย",
			URL:                "https://course.mytcas.com/programs/1",
			DegreeNameEN:       model.StringPtr("Bachelor of Engineering"),
			ProgramType:        model.StringPtr("ภาษาไทย ปกติ"),
			TuitionPerSemester: intPtr(21000),
			TuitionBasis:       "per_semester",
			RawFeeText:         model.StringPtr("ภาคการศึกษาละ 21,000 บาท"),
			AdmissionRounds:    map[string]string{"รอบที่ 1 Portfolio": "รับ 30 คน"},
			Keywords:           []string{"วิศวกรรมคอมพิวเตอร์", "วิศวกรรมปัญญาประดิษฐ์"},
		},
		{
			ProgramName:  "วิศวกรรมปัญญาประดิษฐ์",
			University:   model.NotAvailable,
			URL:          "https://course.mytcas.com/programs/2",
			TuitionBasis: "unavailable",
			Keywords:     []string{"วิศวกรรมปัญญาประดิษฐ์"},
		},
	}
}

func TestWriteJSON_NullsAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tcas_data.json")
	records := sampleRecords()

	require.NoError(t, WriteJSON(path, records))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	require.Contains(t, text, `"degree_name_en": null`)
	require.Contains(t, text, `"tuition_per_semester": null`)
	require.Contains(t, text, `"raw_fee_text": null`)
	require.NotContains(t, text, `"degree_name_en": ""`)
	require.Contains(t, text, "วิศวกรรมคอมพิวเตอร์", "Thai text is written as UTF-8, not escaped")
	require.Equal(t, 1, strings.Count(text, "admission_rounds"), "empty rounds are omitted")

	got, err := ReadJSON(path)
	require.NoError(t, err)
	require.Equal(t, records, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteJSON_EmptySetIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteJSON(path, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(raw))
}

func TestReadJSON_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := ReadJSON(path)
	require.Error(t, err)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tcas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveRunAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := s.SaveRun(ctx, Run{Started: started, Finished: started.Add(time.Minute), Queries: []string{"a", "b"}}, sampleRecords())
	require.NoError(t, err)
	require.Len(t, id, 26, "run ids are ULIDs")

	programs, err := s.Programs(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 2)

	byURL := map[string]*model.ProgramRecord{}
	for _, p := range programs {
		byURL[p.URL] = p
	}
	first := byURL["https://course.mytcas.com/programs/1"]
	require.Equal(t, 21000, *first.TuitionPerSemester)
	require.Equal(t, "ภาษาไทย ปกติ", *first.ProgramType)
	require.Equal(t, map[string]string{"รอบที่ 1 Portfolio": "รับ 30 คน"}, first.AdmissionRounds)

	second := byURL["https://course.mytcas.com/programs/2"]
	require.Nil(t, second.TuitionPerSemester)
	require.Nil(t, second.DegreeNameEN)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, id, runs[0].ID)
	require.Equal(t, []string{"a", "b"}, runs[0].Queries)
	require.Equal(t, 2, runs[0].Programs)
	require.True(t, runs[0].Started.Equal(started))
}

func TestSQLiteStore_UpsertMergesKeywords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	first := sampleRecords()[:1]
	_, err := s.SaveRun(ctx, Run{Started: now, Finished: now}, first)
	require.NoError(t, err)

	again := sampleRecords()[:1]
	again[0].Keywords = []string{"วิศวกรรมปัญญาประดิษฐ์", "วิศวกรรมหุ่นยนต์"}
	again[0].TuitionPerSemester = intPtr(22000)
	_, err = s.SaveRun(ctx, Run{Started: now.Add(time.Hour), Finished: now.Add(time.Hour)}, again)
	require.NoError(t, err)

	programs, err := s.Programs(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	require.Equal(t, []string{"วิศวกรรมคอมพิวเตอร์", "วิศวกรรมปัญญาประดิษฐ์", "วิศวกรรมหุ่นยนต์"}, programs[0].Keywords)
	require.Equal(t, 22000, *programs[0].TuitionPerSemester, "latest values win")

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestSQLiteStore_CorruptKeywordsRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	records := sampleRecords()[:1]
	_, err := s.SaveRun(ctx, Run{Started: now, Finished: now}, records)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE programs SET keywords = 'not json' WHERE url = ?`, records[0].URL)
	require.NoError(t, err)

	_, err = s.SaveRun(ctx, Run{Started: now, Finished: now}, sampleRecords()[:1])
	require.ErrorContains(t, err, "parse stored keywords")

	_, err = s.Programs(ctx)
	require.ErrorContains(t, err, "parse keywords")

	var stored string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT keywords FROM programs WHERE url = ?`, records[0].URL).Scan(&stored))
	require.Equal(t, "not json", stored, "a failed upsert leaves the row untouched")
}

func TestSQLiteStore_CorruptColumnsReported(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	records := sampleRecords()[:1]
	records[0].AdmissionRounds = map[string]string{"รอบที่ 1 Portfolio": "เปิดรับ"}
	runID, err := s.SaveRun(ctx, Run{Started: now, Finished: now}, records)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE programs SET admission_rounds = '{' WHERE url = ?`, records[0].URL)
	require.NoError(t, err)
	_, err = s.Programs(ctx)
	require.ErrorContains(t, err, "parse admission rounds")

	_, err = s.db.ExecContext(ctx, `UPDATE runs SET started_at = 'yesterday' WHERE id = ?`, runID)
	require.NoError(t, err)
	_, err = s.Runs(ctx)
	require.ErrorContains(t, err, "parse started_at")
}

func TestMergeKeywords(t *testing.T) {
	require.Equal(t, []string{"a", "a"}, mergeKeywords(nil, []string{"a", "a"}))
	require.Equal(t, []string{"a", "b", "c"}, mergeKeywords([]string{"a", "b"}, []string{"b", "c", "c"}))
	require.Equal(t, []string{}, mergeKeywords(nil, nil))
}

func TestSummarize(t *testing.T) {
	records := sampleRecords()
	records = append(records, &model.ProgramRecord{
		ProgramName:        "วิศวกรรมไฟฟ้า",
		University:         "จุฬาลงกรณ์มหาวิทยาลัย",
		URL:                "https://course.mytcas.com/programs/3",
		ProgramType:        model.StringPtr("ภาษาไทย ปกติ"),
		TuitionPerSemester: intPtr(25000),
		TuitionBasis:       "per_semester",
		Keywords:           []string{"วิศวกรรมคอมพิวเตอร์"},
	})

	sum := Summarize(records)
	require.Equal(t, 3, sum.Programs)
	require.Equal(t, 2, sum.WithTuition)
	require.InDelta(t, 23000, sum.AverageTuition, 0.001, "records without tuition are excluded")

	require.Equal(t, "จุฬาลงกรณ์มหาวิทยาลัย", sum.Universities[0].Name)
	require.Equal(t, 2, sum.Universities[0].Programs)
	require.InDelta(t, 23000, sum.Universities[0].AverageTuition, 0.001)
	require.Equal(t, model.NotAvailable, sum.Universities[1].Name)
	require.Zero(t, sum.Universities[1].AverageTuition)

	require.Equal(t, []Count{{Label: "ภาษาไทย ปกติ", Count: 2}, {Label: model.NotAvailable, Count: 1}}, sum.ProgramTypes)
	require.Equal(t, []Count{{Label: "per_semester", Count: 2}, {Label: "unavailable", Count: 1}}, sum.Bases)
	require.Equal(t, Count{Label: "วิศวกรรมคอมพิวเตอร์", Count: 2}, sum.Keywords[0])
}
