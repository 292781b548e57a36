package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danidanone/scraping-dashboard/config"
	"github.com/danidanone/scraping-dashboard/models"
	"github.com/danidanone/scraping-dashboard/parser"
	"github.com/danidanone/scraping-dashboard/pipeline"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

const progressInterval = 10 * time.Second

// Crawler walks the configured listing pages, enriches every entry from its
// detail page and accumulates the merged items.
type Crawler struct {
	cfg     *config.Config
	fetcher Fetcher
	metrics *Metrics
	cache   *lru.Cache[string, models.Enrichment]
	logger  *slog.Logger
}

// Option customises a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(c *Crawler) {
		c.metrics = m
	}
}

// New builds a crawler backed by a colly fetcher and a pacer derived from
// cfg.PacingInterval.
func New(cfg *config.Config, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	fetcher, err := NewCollyFetcher(cfg, NewPacer(cfg.PacingInterval), metrics)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	return NewCrawler(cfg, fetcher, append([]Option{WithMetrics(metrics)}, opts...)...)
}

// NewCrawler builds a crawler around an existing fetcher.
func NewCrawler(cfg *config.Config, fetcher Fetcher, opts ...Option) (*Crawler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is nil")
	}

	c := &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.DetailCacheSize > 0 {
		cache, err := lru.New[string, models.Enrichment](cfg.DetailCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create detail cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Metrics returns the crawler's metrics, which may be nil.
func (c *Crawler) Metrics() *Metrics {
	return c.metrics
}

// Run crawls pages 1..TotalPages in order. Page and detail failures are
// recovered; only configuration errors are returned. When ctx is cancelled
// no further requests start and the items gathered so far are returned with
// Cancelled set. A detail fetch whose pacing slot falls after ctx's
// deadline ends the crawl the same way.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	run := &runState{
		id:             runID,
		logger:         c.logger.With(slog.String("run_id", runID)),
		failuresByKind: make(map[string]int),
	}

	acc := pipeline.NewPipeline(c.cfg, pipeline.WithLogger(run.logger))
	acc.Start()
	if c.cfg.Verbose {
		acc.StartMetricsReporting(progressInterval)
	}

	start := time.Now()
	run.logger.Info("crawl started",
		slog.Int("pages", c.cfg.TotalPages),
		slog.Int("workers", c.cfg.DetailWorkers),
		slog.Duration("pacing", c.cfg.PacingInterval),
	)

	seq := 0
	for page := 1; page <= c.cfg.TotalPages; page++ {
		if run.stopped(ctx) {
			break
		}
		summaries, ok := c.loadPage(ctx, page, run)
		if !ok {
			continue
		}
		c.processPage(ctx, page, seq, summaries, acc, run)
		seq += len(summaries)
	}

	if err := acc.Close(); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		run.logger.Error("accumulator shutdown", slog.Any("error", err))
	}

	result := &models.CrawlResult{
		RunID:          run.id,
		Items:          acc.Items(),
		StartTime:      start,
		EndTime:        time.Now(),
		PagesRequested: c.cfg.TotalPages,
		PagesVisited:   run.pagesVisited,
		SkippedPages:   run.skippedPages,
		DroppedEntries: run.dropped,
		DetailFailures: run.detailFailures,
		FailuresByKind: run.failuresByKind,
		CacheHits:      run.cacheHits,
		Cancelled:      run.stopped(ctx),
	}
	sort.Ints(result.SkippedPages)

	run.logger.Info("crawl finished",
		slog.Int("items", len(result.Items)),
		slog.Int("pages_visited", result.PagesVisited),
		slog.Int("pages_skipped", len(result.SkippedPages)),
		slog.Int("detail_failures", result.DetailFailures),
		slog.Bool("cancelled", result.Cancelled),
		slog.Duration("duration", result.EndTime.Sub(start)),
	)
	return result, nil
}

// loadPage fetches and parses listing page n. A false return means the page
// was skipped or the crawl was cancelled.
func (c *Crawler) loadPage(ctx context.Context, page int, run *runState) ([]models.Summary, bool) {
	pageURL, err := c.cfg.ListingURL(page)
	if err != nil {
		run.skipPage(page, "malformed_url")
		run.logger.Error("listing url", slog.Int("page", page), slog.Any("error", err))
		c.metrics.IncPage("skipped")
		return nil, false
	}

	outcome := c.fetcher.FetchListing(ctx, pageURL.String())
	if !outcome.OK() {
		if ctx.Err() != nil {
			return nil, false
		}
		run.skipPage(page, string(outcome.Failure.Kind))
		run.logger.Warn("skipping listing page",
			slog.Int("page", page),
			slog.String("kind", string(outcome.Failure.Kind)),
			slog.Any("error", outcome.Failure),
		)
		c.metrics.IncPage("skipped")
		return nil, false
	}

	base := pageURL
	if final, err := url.Parse(outcome.URL); err == nil && final.IsAbs() {
		base = final
	}
	listing, err := parser.ParseListing(bytes.NewReader(outcome.Body), base)
	if err != nil {
		run.skipPage(page, string(KindMalformedResponse))
		run.logger.Warn("skipping unparseable listing page", slog.Int("page", page), slog.Any("error", err))
		c.metrics.IncPage("skipped")
		return nil, false
	}

	for _, skipped := range listing.Skipped {
		run.dropEntry()
		c.metrics.IncDropped()
		run.logger.Warn("dropping listing entry",
			slog.Int("page", page),
			slog.Int("index", skipped.Index),
			slog.String("title", skipped.Title),
			slog.Any("error", skipped.Err),
		)
	}

	for _, warning := range listing.Warnings {
		run.logger.Warn("listing entry kept without image",
			slog.Int("page", page),
			slog.Int("index", warning.Index),
			slog.String("title", warning.Title),
			slog.Any("error", warning.Err),
		)
	}

	run.visitPage()
	c.metrics.IncPage("visited")
	run.logger.Debug("listing page parsed", slog.Int("page", page), slog.Int("entries", len(listing.Summaries)))
	return listing.Summaries, true
}

// processPage enriches the summaries of one page. Up to DetailWorkers detail
// fetches run at once; seq keeps the crawl order regardless of completion order.
func (c *Crawler) processPage(ctx context.Context, page, seq int, summaries []models.Summary, acc *pipeline.Pipeline, run *runState) {
	var g errgroup.Group
	g.SetLimit(c.cfg.DetailWorkers)

	for i, summary := range summaries {
		if run.stopped(ctx) {
			break
		}
		g.Go(func() error {
			if run.stopped(ctx) {
				return nil
			}
			enrichment, ok := c.enrich(ctx, page, summary, run)
			if !ok {
				return nil
			}
			if err := acc.Process(seq+i, models.NewItem(summary, enrichment)); err != nil {
				run.logger.Error("accumulate item", slog.String("title", summary.Title), slog.Any("error", err))
				return nil
			}
			c.metrics.IncItems()
			return nil
		})
	}
	_ = g.Wait()
}

// enrich returns the detail fields for summary, falling back to the default
// enrichment when the detail page cannot be fetched. It reports false only
// when the fetch was abandoned because the crawl ran out of time.
func (c *Crawler) enrich(ctx context.Context, page int, summary models.Summary, run *runState) (models.Enrichment, bool) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(summary.DetailURL); ok {
			run.cacheHit()
			c.metrics.IncCacheHit()
			return cached, true
		}
	}

	outcome := c.fetcher.FetchDetail(ctx, summary.DetailURL)
	if !outcome.OK() {
		if ctx.Err() != nil || outcome.Failure.Abandoned() {
			run.abandon()
			return models.Enrichment{}, false
		}
		run.detailFailure(string(outcome.Failure.Kind))
		run.logger.Warn("detail fetch failed, using defaults",
			slog.Int("page", page),
			slog.String("title", summary.Title),
			slog.String("kind", string(outcome.Failure.Kind)),
			slog.Any("error", outcome.Failure),
		)
		return parser.DefaultEnrichment(), true
	}

	enrichment := parser.ParseDetail(bytes.NewReader(outcome.Body))
	if c.cache != nil {
		c.cache.Add(summary.DetailURL, enrichment)
	}
	return enrichment, true
}

// runState holds the counters of one Run. Detail workers update it
// concurrently.
type runState struct {
	id     string
	logger *slog.Logger

	abandoned atomic.Bool

	mu             sync.Mutex
	pagesVisited   int
	skippedPages   []int
	dropped        int
	detailFailures int
	cacheHits      int
	failuresByKind map[string]int
}

func (r *runState) abandon() {
	r.abandoned.Store(true)
}

// stopped reports whether no further fetch should start.
func (r *runState) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || r.abandoned.Load()
}

func (r *runState) visitPage() {
	r.mu.Lock()
	r.pagesVisited++
	r.mu.Unlock()
}

func (r *runState) skipPage(page int, kind string) {
	r.mu.Lock()
	r.skippedPages = append(r.skippedPages, page)
	r.failuresByKind[kind]++
	r.mu.Unlock()
}

func (r *runState) dropEntry() {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}

func (r *runState) detailFailure(kind string) {
	r.mu.Lock()
	r.detailFailures++
	r.failuresByKind[kind]++
	r.mu.Unlock()
}

func (r *runState) cacheHit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}
