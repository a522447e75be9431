package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/tcasfees/internal/browser"
	"github.com/ppiankov/tcasfees/internal/browser/browsertest"
	"github.com/ppiankov/tcasfees/internal/fees"
	"github.com/ppiankov/tcasfees/internal/model"
	"github.com/stretchr/testify/require"
)

const landing = "https://course.example/"

func testConfig() model.CatalogConfig {
	cfg := model.DefaultConfig().Catalog
	cfg.LandingURL = landing
	cfg.KeyDelay = 0
	return cfg
}

func TestSearch_HarvestsInDocumentOrder(t *testing.T) {
	site := browsertest.NewSite(landing)
	site.Results["วิศวกรรมคอมพิวเตอร์"] = []browser.Anchor{
		{Text: "  วิศวกรรมคอมพิวเตอร์\nจุฬาลงกรณ์มหาวิทยาลัย  ", Href: "https://course.example/programs/1"},
		{Text: "no link", Href: ""},
		{Text: "วิศวกรรมคอมพิวเตอร์", Href: "https://course.example/programs/2"},
	}

	results, err := NewSearcher(site, testConfig()).Search(context.Background(), "วิศวกรรมคอมพิวเตอร์")
	require.NoError(t, err)
	require.Equal(t, []model.SearchResult{
		{Title: "วิศวกรรมคอมพิวเตอร์\nจุฬาลงกรณ์มหาวิทยาลัย", URL: "https://course.example/programs/1"},
		{Title: "วิศวกรรมคอมพิวเตอร์", URL: "https://course.example/programs/2"},
	}, results)
	require.Equal(t, []string{"วิศวกรรมคอมพิวเตอร์"}, site.Typed())
	require.Zero(t, site.OpenPages())
}

func TestSearch_NoResultsTimesOut(t *testing.T) {
	site := browsertest.NewSite(landing)

	_, err := NewSearcher(site, testConfig()).Search(context.Background(), "ไม่มีผล")
	require.Error(t, err)
	require.True(t, browser.IsTimeout(err), "got %v", err)
	require.Zero(t, site.OpenPages())
}

func TestSearch_LandingFailure(t *testing.T) {
	site := browsertest.NewSite(landing)
	site.GotoErr[landing] = errors.New("connection refused")

	_, err := NewSearcher(site, testConfig()).Search(context.Background(), "x")
	require.ErrorContains(t, err, "open landing page")
	require.Zero(t, site.OpenPages())
}

func TestExtract_AllFields(t *testing.T) {
	site := browsertest.NewSite(landing)
	url := "https://course.example/programs/1"
	labels := map[string]string{}
	labels["ชื่อหลักสูตรภาษาอังกฤษ"] = " Bachelor of Engineering "
	labels["ประเภทหลักสูตร"] = "ภาษาไทย ปกติ"
	labels["ค่าใช้จ่าย"] = "ตลอดหลักสูตร 400,000"
	labels["รอบที่ 1 Portfolio"] = "รับ 30 คน"
	site.Details[url] = labels

	record, err := NewExtractor(site, testConfig()).Extract(context.Background(), model.SearchResult{
		Title: "วิศวกรรมคอมพิวเตอร์\r\nวิทยาเขตหลัก\r\nมหาวิทยาลัยเกษตรศาสตร์",
		URL:   url,
	})
	require.NoError(t, err)
	require.Equal(t, "วิศวกรรมคอมพิวเตอร์", record.ProgramName)
	require.Equal(t, "มหาวิทยาลัยเกษตรศาสตร์", record.University)
	require.Equal(t, url, record.URL)
	require.Equal(t, "Bachelor of Engineering", *record.DegreeNameEN)
	require.Equal(t, "ภาษาไทย ปกติ", *record.ProgramType)
	require.Equal(t, "ตลอดหลักสูตร 400,000", *record.RawFeeText)
	require.Equal(t, 50000, *record.TuitionPerSemester)
	require.Equal(t, string(fees.BasisWholeProgram), record.TuitionBasis)
	require.Equal(t, map[string]string{"รอบที่ 1 Portfolio": "รับ 30 คน"}, record.AdmissionRounds)
	require.Empty(t, record.Keywords)
	require.Zero(t, site.OpenPages())
}

func TestExtract_MissingFieldsAreNil(t *testing.T) {
	site := browsertest.NewSite(landing)
	url := "https://course.example/programs/2"
	site.Details[url] = map[string]string{
		"ค่าใช้จ่าย": "   ",
	}

	record, err := NewExtractor(site, testConfig()).Extract(context.Background(), model.SearchResult{
		Title: "วิศวกรรมปัญญาประดิษฐ์",
		URL:   url,
	})
	require.NoError(t, err)
	require.Equal(t, model.NotAvailable, record.University)
	require.Nil(t, record.DegreeNameEN)
	require.Nil(t, record.ProgramType)
	require.Nil(t, record.RawFeeText, "blank text is absent, not empty")
	require.Nil(t, record.TuitionPerSemester)
	require.Equal(t, string(fees.BasisUnavailable), record.TuitionBasis)
	require.Nil(t, record.AdmissionRounds)
}

func TestExtract_NavigationFailure(t *testing.T) {
	site := browsertest.NewSite(landing)
	candidate := model.SearchResult{Title: "x\ny", URL: "https://course.example/broken"}
	cause := errors.New("net::ERR_CONNECTION_RESET")
	site.GotoErr[candidate.URL] = cause

	record, err := NewExtractor(site, testConfig()).Extract(context.Background(), candidate)
	require.Nil(t, record)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.Equal(t, candidate, extractErr.Candidate)
	require.ErrorIs(t, err, cause)
	require.Zero(t, site.OpenPages())
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		title, name, university string
	}{
		{"วิศวกรรมคอมพิวเตอร์\nจุฬาลงกรณ์มหาวิทยาลัย", "วิศวกรรมคอมพิวเตอร์", "จุฬาลงกรณ์มหาวิทยาลัย"},
		{"วิศวกรรมคอมพิวเตอร์", "วิศวกรรมคอมพิวเตอร์", model.NotAvailable},
		{"a\n\n  \nb\nc", "a", "c"},
		{"a\r\nb", "a", "b"},
		{"  \n ", model.NotAvailable, model.NotAvailable},
	}
	for _, tt := range tests {
		name, university := SplitTitle(tt.title)
		require.Equal(t, tt.name, name, tt.title)
		require.Equal(t, tt.university, university, tt.title)
	}
}
