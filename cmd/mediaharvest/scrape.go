package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mediaharvest/pkg/config"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/scraper"
)

var (
	// Scrape command flags
	outputDir      string
	crawlDepth     int
	maxPages       int
	workers        int
	maxFiles       int
	minWidth       int
	minHeight      int
	hashAlgorithm  string
	moveDuplicates bool
	continueRun    bool
	headless       bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url> [url...]",
	Short: "Harvest media starting from one or more seed URLs",
	Long: `Harvest media starting from the given seed URLs.

Each seed gets its own handler and extraction strategy; crawling and
downloading are bounded by the depth, page, and file limits. Bluesky
shorthands are accepted as seeds: @handle and #hashtag expand to the
matching bsky.app URLs.`,
	Example: `  # Harvest a gallery two link-levels deep
  mediaharvest scrape https://example.com/gallery --depth 2

  # Only large images, at most 100 files
  mediaharvest scrape https://example.com --min-width 1024 --max-files 100

  # Resume into a previous output directory
  mediaharvest scrape https://example.com -o ./downloads --continue

  # A Bluesky profile via shorthand
  mediaharvest scrape @alice.bsky.social`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	scrapeCmd.Flags().IntVar(&crawlDepth, "depth", -1, "maximum link-follow depth")
	scrapeCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to visit per seed")
	scrapeCmd.Flags().IntVar(&workers, "workers", 0, "parallel download workers")
	scrapeCmd.Flags().IntVar(&maxFiles, "max-files", 0, "stop after saving this many files (0 = unlimited)")
	scrapeCmd.Flags().IntVar(&minWidth, "min-width", 0, "minimum image width in pixels")
	scrapeCmd.Flags().IntVar(&minHeight, "min-height", 0, "minimum image height in pixels")
	scrapeCmd.Flags().StringVar(&hashAlgorithm, "hash-algorithm", "", "duplicate detection hash (phash, average, dhash, none)")
	scrapeCmd.Flags().BoolVar(&moveDuplicates, "move-duplicates", false, "move replaced duplicates to _duplicates/ instead of deleting")
	scrapeCmd.Flags().BoolVar(&continueRun, "continue", false, "continue a previous run in the same output directory")
	scrapeCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
}

func runScrape(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"output":         outputDir,
		"max-pages":      maxPages,
		"workers":        workers,
		"max-files":      maxFiles,
		"min-width":      minWidth,
		"min-height":     minHeight,
		"hash-algorithm": hashAlgorithm,
		"log-level":      logLevel,
	}
	if crawlDepth >= 0 {
		flags["depth"] = crawlDepth
	}
	if cmd.Flags().Changed("move-duplicates") {
		flags["move-duplicates"] = moveDuplicates
	}
	if cmd.Flags().Changed("continue") {
		flags["continue"] = continueRun
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = headless
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}

	s, err := scraper.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := s.Run(ctx, args)
	if err != nil {
		return err
	}

	fmt.Println(result.SummaryText)
	if result.Stats.Error != "" && result.Stats.FilesDownloaded() == 0 {
		os.Exit(1)
	}
	return nil
}
