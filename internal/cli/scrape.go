package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/tcasfees/internal/browser"
	"github.com/ppiankov/tcasfees/internal/logging"
	"github.com/ppiankov/tcasfees/internal/model"
	"github.com/ppiankov/tcasfees/internal/pipeline"
	"github.com/ppiankov/tcasfees/internal/store"
)

var (
	queriesFile string
	runTimeout  time.Duration
	logLevel    string
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape [query...]",
	Short: "Search the catalog and write program records",
	Long: `Scrape runs every query against the catalog search, extracts each newly
found program once and writes the merged record set.

Queries come from the arguments, else from --queries-file (one per line,
# starts a comment), else from catalog.queries in the configuration.

Example:
  tcasfees scrape
  tcasfees scrape วิศวกรรมคอมพิวเตอร์ วิศวกรรมปัญญาประดิษฐ์ --json out.json
  tcasfees scrape --queries-file queries.txt --sqlite tcas.db
  tcasfees scrape --headless=false
  tcasfees scrape --engine http --config mirror.yaml`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	f := scrapeCmd.Flags()
	f.StringVar(&queriesFile, "queries-file", "", "read queries from file (one per line)")
	f.DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 = none)")
	f.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Flags backed by configuration keys
	f.String("json", "", "output JSON path")
	f.String("sqlite", "", "also upsert records into this SQLite database")
	f.String("log-format", "", "log format (console, json)")
	f.String("engine", "", "browser engine (chrome, or http for static mirrors)")
	f.Bool("headless", true, "run chrome headless")
	f.Duration("detail-delay", 0, "pause between detail pages")
	f.String("ua", "", "HTTP User-Agent")
	f.Bool("insecure", false, "skip TLS certificate verification")
	f.String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	f.String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	f.Bool("cloudflare-bypass", false, "send browser-like TLS and headers to pass Cloudflare checks")
	f.Bool("respect-robots", true, "obey robots.txt")
	f.Bool("cache", true, "cache fetched pages")
	f.Float64("rps", 0, "max requests per second per host")

	bind := map[string]string{
		"json":              "output.json",
		"sqlite":            "output.sqlite",
		"log-format":        "output.log_format",
		"engine":            "browser.engine",
		"headless":          "browser.headless",
		"detail-delay":      "catalog.detail_delay",
		"ua":                "http.user_agent",
		"insecure":          "http.insecure_tls",
		"http-proxy":        "http.http_proxy",
		"https-proxy":       "http.https_proxy",
		"cloudflare-bypass": "http.cloudflare_bypass",
		"respect-robots":    "http.respect_robots",
		"cache":             "cache.enabled",
		"rps":               "rate_limiting.requests_per_second",
	}
	for flag, key := range bind {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Output.Verbose && !cmd.Flags().Changed("log-level") {
		logLevel = "debug"
	}
	logging.Init(logLevel, cfg.Output.LogFormat)

	queries, err := resolveQueries(args, queriesFile, cfg.Catalog.Queries)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  tcasfees scrape\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Catalog:      %s\n", cfg.Catalog.LandingURL)
	fmt.Fprintf(os.Stderr, "  Engine:       %s\n", cfg.Browser.Engine)
	fmt.Fprintf(os.Stderr, "  Queries:      %d\n", len(queries))
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", cfg.Output.JSONPath)
	fmt.Fprintf(os.Stderr, "\n")

	b, err := browser.Open(ctx, browserOptions(cfg))
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer func() { _ = b.Close() }()

	result, runErr := pipeline.NewPipeline(b, cfg).Run(ctx, queries)
	if runErr != nil && !pipeline.Canceled(runErr) {
		return fmt.Errorf("run: %w", runErr)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "\n⚠️  Run interrupted (%v); writing what was collected\n", runErr)
	}

	if err := store.WriteJSON(cfg.Output.JSONPath, result.Records); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s (%d programs)\n", cfg.Output.JSONPath, len(result.Records))

	if cfg.Output.SQLitePath != "" {
		// The run context may already be canceled; the export must still happen
		runID, err := saveSQLite(context.WithoutCancel(ctx), cfg.Output.SQLitePath, result)
		if err != nil {
			return fmt.Errorf("write SQLite: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote SQLite: %s (run %s)\n", cfg.Output.SQLitePath, runID)
	}

	printRunSummary(result)

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}

func saveSQLite(ctx context.Context, path string, result *pipeline.RunResult) (string, error) {
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = s.Close() }()

	return s.SaveRun(ctx, store.Run{
		Started:  result.Started,
		Finished: result.Finished,
		Queries:  result.Queries,
	}, result.Records)
}

func printRunSummary(result *pipeline.RunResult) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Programs:           %d\n", len(result.Records))
	fmt.Fprintf(os.Stderr, "  Failed extractions: %d\n", len(result.Failures))
	fmt.Fprintf(os.Stderr, "  Failed queries:     %d\n", len(result.QueryErrors))
	fmt.Fprintf(os.Stderr, "  Duration:           %v\n", result.Finished.Sub(result.Started).Round(time.Second))

	for _, f := range result.Failures {
		fmt.Fprintf(os.Stderr, "  ✗ %s (%s): %v\n", f.Candidate.URL, f.Query, f.Err)
	}
	for _, q := range result.QueryErrors {
		fmt.Fprintf(os.Stderr, "  ✗ query %s: %v\n", q.Query, q.Err)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

// browserOptions maps configuration onto the navigator engines
func browserOptions(cfg *model.Config) browser.Options {
	return browser.Options{
		Engine:       cfg.Browser.Engine,
		Headless:     cfg.Browser.Headless,
		PollInterval: cfg.Browser.PollInterval,
		HTTP: browser.HTTPOptions{
			Fetcher: browser.FetcherOptions{
				Timeout:          cfg.HTTP.Timeout,
				UserAgent:        cfg.HTTP.UserAgent,
				MaxBytes:         cfg.HTTP.MaxBodyBytes,
				MaxRetries:       cfg.HTTP.MaxRetries,
				InsecureTLS:      cfg.HTTP.InsecureTLS,
				HTTPProxy:        cfg.HTTP.HTTPProxy,
				HTTPSProxy:       cfg.HTTP.HTTPSProxy,
				NoProxy:          cfg.HTTP.NoProxy,
				CloudflareBypass: cfg.HTTP.CloudflareBypass,
			},
			SearchURL:         cfg.Catalog.SearchURL,
			Pages:             pageCache(cfg),
			PagesTTL:          cfg.Cache.DiskTTL,
			RespectRobots:     cfg.HTTP.RespectRobots,
			RequestsPerSecond: cfg.RateLimiting.RequestsPerSecond,
			Burst:             cfg.RateLimiting.BurstSize,
		},
	}
}

// resolveQueries picks queries from args, then file, then configuration
func resolveQueries(args []string, file string, configured []string) ([]string, error) {
	var queries []string
	switch {
	case len(args) > 0:
		queries = args
	case file != "":
		fromFile, err := readQueriesFile(file)
		if err != nil {
			return nil, fmt.Errorf("read queries: %w", err)
		}
		queries = fromFile
	default:
		queries = configured
	}

	var out []string
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no queries: pass them as arguments, with --queries-file, or set catalog.queries")
	}
	return out, nil
}

// readQueriesFile reads one query per line, skipping blanks and # comments.
// Repeated queries are kept; each one appends its keyword again.
func readQueriesFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return queries, nil
}
