package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/danidanone/scraping-dashboard/config"
	"github.com/danidanone/scraping-dashboard/models"
	"github.com/danidanone/scraping-dashboard/pipeline"
	"github.com/danidanone/scraping-dashboard/scraper"
	"github.com/danidanone/scraping-dashboard/stats"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const topCategories = 5

func main() {
	defaultCfg := config.DefaultConfig()
	pagesDefault := envIntOrExit("SCRAPER_PAGES", defaultCfg.TotalPages)
	workersDefault := envIntOrExit("SCRAPER_WORKERS", defaultCfg.DetailWorkers)
	pacingDefault := defaultCfg.PacingInterval
	if value, ok, err := config.EnvDuration("SCRAPER_PACING"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PACING: %v\n", err)
		os.Exit(1)
	} else if ok {
		pacingDefault = value
	}
	templateDefault := defaultCfg.ListingTemplate
	if value, ok := config.EnvString("SCRAPER_TEMPLATE"); ok {
		templateDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	totalPages := flag.Int("pages", pagesDefault, "Number of listing pages to crawl")
	template := flag.String("template", templateDefault, "Listing URL template containing "+config.PagePlaceholder)
	pacing := flag.Duration("pacing", pacingDefault, "Minimum interval between detail requests (0 disables)")
	workers := flag.Int("workers", workersDefault, "Concurrent detail fetches")
	outputDir := flag.String("output", outputDefault, "Output directory")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request timeout")
	cacheSize := flag.Int("cache-size", defaultCfg.DetailCacheSize, "Detail enrichment cache entries (0 disables)")
	respectRobots := flag.Bool("respect-robots", defaultCfg.RespectRobotsTxt, "Respect robots.txt directives")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.TotalPages = *totalPages
	cfg.ListingTemplate = *template
	cfg.PacingInterval = *pacing
	cfg.DetailWorkers = *workers
	cfg.OutputDir = *outputDir
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Timeout = *timeout
	cfg.DetailCacheSize = *cacheSize
	cfg.RespectRobotsTxt = *respectRobots
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	crawler, err := scraper.New(cfg, scraper.WithLogger(logger))
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing with the items gathered so far")
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, crawler.Metrics())

	result, err := crawler.Run(ctx)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}

	rows := stats.Aggregate(result.Items)
	if err := writeOutputs(cfg, result.Items, rows); err != nil {
		slog.Error("writing output", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, stats.Summarize(result.Items, topCategories), cfg)
}

func envIntOrExit(key string, fallback int) int {
	value, ok, err := config.EnvInt(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	if !ok {
		return fallback
	}
	return value
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func writeOutputs(cfg *config.Config, items []models.Item, rows []models.CategoryStats) error {
	writer, err := createWriter(cfg.OutputFormat, cfg.OutputDir)
	if err != nil {
		return err
	}

	if err := writeTables(writer, items, rows); err != nil {
		return errors.Join(err, writer.Close())
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	slog.Info("output written",
		slog.String("dir", cfg.OutputDir),
		slog.String("format", cfg.OutputFormat),
		slog.Int("items", len(items)),
		slog.Int("categories", len(rows)),
	)
	return nil
}

func writeTables(writer pipeline.OutputWriter, items []models.Item, rows []models.CategoryStats) error {
	if err := writer.WriteItems(items); err != nil {
		return fmt.Errorf("write items: %w", err)
	}
	if err := writer.WriteStats(rows); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

func createWriter(format, dir string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(dir)
	case "csv":
		return pipeline.NewCSVWriter(dir)
	case "dual":
		return pipeline.NewDualWriter(dir)
	case "sqlite":
		return pipeline.NewSQLiteWriter(dir)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.CrawlResult, summary stats.Summary, cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Crawl complete")
	t.AppendHeader(table.Row{"Metric", "Value"})

	skipped := "none"
	if len(result.SkippedPages) > 0 {
		pages := make([]string, len(result.SkippedPages))
		for i, page := range result.SkippedPages {
			pages[i] = strconv.Itoa(page)
		}
		skipped = strings.Join(pages, ", ")
	}

	t.AppendRows([]table.Row{
		{"Run", result.RunID},
		{"Pages visited", fmt.Sprintf("%d / %d", result.PagesVisited, result.PagesRequested)},
		{"Pages skipped", skipped},
		{"Items produced", summary.TotalItems},
		{"Dropped entries", result.DroppedEntries},
		{"Detail failures", result.DetailFailures},
		{"Cache hits", result.CacheHits},
	})
	if summary.TotalItems > 0 {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Price range", fmt.Sprintf("£%s - £%s", summary.PriceMin.StringFixed(stats.Digits), summary.PriceMax.StringFixed(stats.Digits))},
			{"Mean price", "£" + summary.PriceMean.StringFixed(stats.Digits)},
			{"Mean rating", summary.RatingMean.StringFixed(stats.Digits)},
			{"Categories", summary.Categories},
		})
	}
	if len(result.FailuresByKind) > 0 {
		t.AppendRow(table.Row{"Failures", fmt.Sprintf("%v", result.FailuresByKind)})
	}
	if result.Cancelled {
		t.AppendRow(table.Row{"Cancelled", "yes, partial results"})
	}
	t.AppendFooter(table.Row{"Duration", result.EndTime.Sub(result.StartTime).Round(time.Millisecond)})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(summary.TopCategories) == 0 {
		fmt.Printf("Output: %s (%s)\n", cfg.OutputDir, cfg.OutputFormat)
		return
	}

	top := table.NewWriter()
	top.SetOutputMirror(os.Stdout)
	top.SetTitle("Top categories")
	top.AppendHeader(table.Row{"#", "Category", "Items"})
	for i, c := range summary.TopCategories {
		top.AppendRow(table.Row{i + 1, c.Category, c.Count})
	}
	top.SetStyle(table.StyleRounded)
	top.Render()
	fmt.Printf("Output: %s (%s)\n", cfg.OutputDir, cfg.OutputFormat)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
