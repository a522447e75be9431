package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/tcasfees/internal/cache"
	"github.com/ppiankov/tcasfees/internal/model"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the page cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [url...]",
	Short: "Drop cached pages",
	Long: `Drop cached catalog pages from the cache directory (cache.dir).

With no arguments every cached page is removed. With URLs only those pages are
removed, so the next scrape fetches them again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		return clearCache(os.Stdout, cfg, args)
	},
}

// pageCache builds the page cache configured in cfg, or nil when caching is off
func pageCache(cfg *model.Config) cache.Cache {
	return cache.New(cache.Options{
		Enabled:   cfg.Cache.Enabled,
		Dir:       cfg.Cache.Dir,
		MemoryTTL: cfg.Cache.MemoryTTL,
		DiskTTL:   cfg.Cache.DiskTTL,
	})
}

func clearCache(w io.Writer, cfg *model.Config, urls []string) error {
	if cfg.Cache.Dir == "" {
		_, _ = fmt.Fprintf(w, "No cache directory configured; nothing to clear\n")
		return nil
	}
	// The directory is cleared even when caching is switched off for scrapes
	enabled := *cfg
	enabled.Cache.Enabled = true
	c := pageCache(&enabled)

	if len(urls) == 0 {
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		_, _ = fmt.Fprintf(w, "✓ Cleared page cache: %s\n", cfg.Cache.Dir)
		return nil
	}

	for _, u := range urls {
		if err := c.Delete(cache.PageKey(u)); err != nil {
			return fmt.Errorf("delete %s: %w", u, err)
		}
		_, _ = fmt.Fprintf(w, "✓ Dropped %s\n", u)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
