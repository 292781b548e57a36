package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danidanone/scraping-dashboard/config"
	"github.com/gocolly/colly/v2"
)

const outcomeKey = "outcome"

// Fetcher retrieves listing and detail pages. Implementations never retry;
// the crawler decides how to recover from a failed outcome.
type Fetcher interface {
	FetchListing(ctx context.Context, url string) FetchOutcome
	FetchDetail(ctx context.Context, url string) FetchOutcome
}

// CollyFetcher fetches pages with a synchronous colly collector.
type CollyFetcher struct {
	collector *colly.Collector
	pacer     *Pacer
	metrics   *Metrics
}

// NewCollyFetcher builds a fetcher restricted to the listing template host.
// Detail fetches wait on pacer first.
func NewCollyFetcher(cfg *config.Config, pacer *Pacer, metrics *Metrics) (*CollyFetcher, error) {
	host := cfg.Host()
	if host == "" {
		return nil, fmt.Errorf("listing template must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.DetailWorkers,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	collector.OnResponse(func(r *colly.Response) {
		if len(r.Body) == 0 {
			r.Ctx.Put(outcomeKey, failed(r.Request.URL.String(), KindMalformedResponse, r.StatusCode, errors.New("empty body")))
			return
		}
		r.Ctx.Put(outcomeKey, succeeded(r.Request.URL.String(), r.StatusCode, r.Body))
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		url := ""
		if r.Request != nil && r.Request.URL != nil {
			url = r.Request.URL.String()
		}
		r.Ctx.Put(outcomeKey, failed(url, classifyError(err, r.StatusCode), r.StatusCode, err))
	})

	return &CollyFetcher{
		collector: collector,
		pacer:     pacer,
		metrics:   metrics,
	}, nil
}

// FetchListing fetches a listing page. Listing fetches are not paced.
func (f *CollyFetcher) FetchListing(ctx context.Context, url string) FetchOutcome {
	return f.fetch(ctx, "listing", url)
}

// FetchDetail waits for the pacer and fetches a detail page.
func (f *CollyFetcher) FetchDetail(ctx context.Context, url string) FetchOutcome {
	if err := f.pacer.Wait(ctx); err != nil {
		return failed(url, KindNetworkError, 0, err)
	}
	return f.fetch(ctx, "detail", url)
}

func (f *CollyFetcher) fetch(ctx context.Context, stage, url string) FetchOutcome {
	if err := ctx.Err(); err != nil {
		return failed(url, KindNetworkError, 0, err)
	}

	f.metrics.IncRequest(stage)
	start := time.Now()

	reqCtx := colly.NewContext()
	err := f.collector.Request(http.MethodGet, url, nil, reqCtx, nil)
	f.metrics.ObserveDuration(stage, time.Since(start))

	outcome, ok := reqCtx.GetAny(outcomeKey).(FetchOutcome)
	if !ok {
		// colly rejected the request before sending it (bad URL, foreign
		// domain, robots.txt).
		if err == nil {
			err = errors.New("no response recorded")
		}
		outcome = failed(url, classifyError(err, 0), 0, err)
	}

	if !outcome.OK() {
		f.metrics.IncError(stage, outcome.Failure.Reason())
	}
	return outcome
}
