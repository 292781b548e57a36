package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrPacingDeadline means the next pacing slot falls after the context
// deadline, so the fetch was never attempted.
var ErrPacingDeadline = errors.New("pacing slot after context deadline")

// Pacer enforces a minimum interval between detail fetches. One Pacer is
// shared by every detail worker, so the interval holds for the crawl as a
// whole rather than per goroutine.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer returns a token bucket with burst 1 refilled every interval. A
// zero interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until the next fetch may start or ctx is done. When the slot
// would come after ctx's deadline it returns ErrPacingDeadline at once.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrPacingDeadline, err)
	}
	return nil
}

// Interval returns the configured pacing interval.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}
