package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// FailureKind classifies a failed fetch.
type FailureKind string

const (
	KindNetworkError      FailureKind = "network_error"
	KindNonSuccessStatus  FailureKind = "non_success_status"
	KindTimeout           FailureKind = "timeout"
	KindMalformedResponse FailureKind = "malformed_response"
)

// FetchFailure describes why a single fetch did not produce content.
type FetchFailure struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

func (f *FetchFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", f.Kind, f.URL, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.URL, f.Err)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// Reason returns a finer label for metrics and logs, e.g. "not_found".
func (f *FetchFailure) Reason() string {
	switch f.StatusCode {
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	switch {
	case errors.Is(f.Err, context.Canceled):
		return "cancelled"
	case errors.Is(f.Err, ErrPacingDeadline):
		return "abandoned"
	case errors.Is(f.Err, colly.ErrRobotsTxtBlocked):
		return "robots_blocked"
	}
	return string(f.Kind)
}

// Abandoned reports whether the fetch was given up because the crawl ran out
// of time, rather than because the target failed.
func (f *FetchFailure) Abandoned() bool {
	return errors.Is(f.Err, context.Canceled) || errors.Is(f.Err, ErrPacingDeadline)
}

// FetchOutcome is the result of one fetch: either Body or Failure is set.
type FetchOutcome struct {
	URL        string
	StatusCode int
	Body       []byte
	Failure    *FetchFailure
}

// OK reports whether the fetch produced content.
func (o FetchOutcome) OK() bool {
	return o.Failure == nil
}

func succeeded(url string, status int, body []byte) FetchOutcome {
	return FetchOutcome{URL: url, StatusCode: status, Body: body}
}

func failed(url string, kind FailureKind, status int, err error) FetchOutcome {
	return FetchOutcome{
		URL:        url,
		StatusCode: status,
		Failure:    &FetchFailure{Kind: kind, URL: url, StatusCode: status, Err: err},
	}
}

func classifyError(err error, statusCode int) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if statusCode != 0 && !isSuccess(statusCode) {
		return KindNonSuccessStatus
	}
	return KindNetworkError
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
