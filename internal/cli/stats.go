package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/tcasfees/internal/model"
	"github.com/ppiankov/tcasfees/internal/store"
)

var (
	statsTop    int
	statsSQLite string
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats [records.json]",
	Short: "Summarize a scraped record set",
	Long: `Stats prints program counts, average tuition per semester, the universities
with the highest average tuition and the program type breakdown.

Programs without a tuition figure are counted but left out of averages.

Example:
  tcasfees stats
  tcasfees stats tcas_data.json --top 20
  tcasfees stats --from-sqlite tcas.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsTop, "top", 15, "number of universities to list")
	statsCmd.Flags().StringVar(&statsSQLite, "from-sqlite", "", "read programs from a SQLite database instead of JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	records, source, err := loadRecords(cmd.Context(), args)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Records: %s\n\n", source)
	renderStats(os.Stdout, store.Summarize(records), statsTop)
	return nil
}

func loadRecords(ctx context.Context, args []string) ([]*model.ProgramRecord, string, error) {
	if statsSQLite != "" {
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := store.NewSQLiteStore(statsSQLite)
		if err != nil {
			return nil, "", err
		}
		defer func() { _ = s.Close() }()

		records, err := s.Programs(ctx)
		return records, statsSQLite, err
	}

	path := viper.GetString("output.json")
	if len(args) == 1 {
		path = args[0]
	}
	records, err := store.ReadJSON(path)
	return records, path, err
}

// renderStats writes the summary tables to w
func renderStats(w io.Writer, sum store.Summary, top int) {
	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("Overview")
	overview.AppendRows([]table.Row{
		{"Programs", sum.Programs},
		{"With tuition", sum.WithTuition},
		{"Average tuition / semester (THB)", formatBaht(sum.AverageTuition, sum.WithTuition)},
	})
	overview.SetStyle(table.StyleRounded)
	overview.Render()

	universities := table.NewWriter()
	universities.SetOutputMirror(w)
	universities.SetTitle(fmt.Sprintf("Top %d universities by average tuition", top))
	universities.AppendHeader(table.Row{"#", "University", "Programs", "With tuition", "Average (THB)"})
	for i, u := range sum.Universities {
		if i >= top {
			break
		}
		universities.AppendRow(table.Row{i + 1, u.Name, u.Programs, u.WithTuition, formatBaht(u.AverageTuition, u.WithTuition)})
	}
	universities.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	universities.SetStyle(table.StyleRounded)
	universities.Render()

	renderCounts(w, "Program types", "Type", sum.ProgramTypes)
	renderCounts(w, "Tuition basis", "Basis", sum.Bases)
	renderCounts(w, "Keywords", "Query", sum.Keywords)
}

func renderCounts(w io.Writer, title, label string, counts []store.Count) {
	if len(counts) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{label, "Programs"})
	for _, c := range counts {
		t.AppendRow(table.Row{c.Label, c.Count})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func formatBaht(avg float64, n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", avg)
}
