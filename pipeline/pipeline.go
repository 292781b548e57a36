package pipeline

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/danidanone/scraping-dashboard/config"
	"github.com/danidanone/scraping-dashboard/models"
	"github.com/danidanone/scraping-dashboard/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when the consumer does not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

const defaultDrainTimeout = 30 * time.Second

type entry struct {
	seq  int
	item models.Item
}

// Pipeline is the item accumulator. Any number of goroutines may call
// Process; a single consumer goroutine validates and stores the items, so
// the stored slice has exactly one writer.
type Pipeline struct {
	itemCh       chan entry
	logger       *slog.Logger
	drainTimeout time.Duration

	wg      sync.WaitGroup
	started bool
	entries []entry

	metrics metrics

	mu     sync.Mutex // guards closed/started
	closed bool

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for rejected items.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDrainTimeout bounds how long Close waits for the consumer.
func WithDrainTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.drainTimeout = d
		}
	}
}

// NewPipeline builds an accumulator buffered by cfg.PipelineBuffer.
func NewPipeline(cfg *config.Config, opts ...Option) *Pipeline {
	buffer := 0
	if cfg != nil {
		buffer = cfg.PipelineBuffer
	}
	if buffer <= 0 {
		buffer = 256
	}
	p := &Pipeline{
		itemCh:       make(chan entry, buffer),
		logger:       slog.Default(),
		drainTimeout: defaultDrainTimeout,
		metrics:      newMetrics(),
		shutdown:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the consumer goroutine. Calling it twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.started {
		return
	}
	p.started = true
	p.wg.Add(1)
	go p.consume()
}

// Process enqueues an item; seq is its position in crawl order.
func (p *Pipeline) Process(seq int, item models.Item) (err error) {
	if p.isClosed() {
		return ErrPipelineClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.itemCh <- entry{seq: seq, item: item}:
		return nil
	}
}

// Close stops accepting items and waits up to the drain timeout for the
// consumer to empty the buffer.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})

	if !started {
		// Nothing consumed the buffer; drain it here.
		for e := range p.itemCh {
			p.accept(e)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrPipelineCloseTimeout
	}
}

// Items returns the accepted items in crawl order. Call it after Close.
func (p *Pipeline) Items() []models.Item {
	p.mu.Lock()
	defer p.mu.Unlock()

	sorted := make([]entry, len(p.entries))
	copy(sorted, p.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].seq < sorted[j].seq
	})

	items := make([]models.Item, len(sorted))
	for i, e := range sorted {
		items[i] = e.item
	}
	return items
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				p.logger.Info("pipeline progress",
					slog.Int64("accepted_items", metrics["accepted_items"].(int64)),
					slog.Int("rejections", len(metrics["validation_errors"].(map[string]int))),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) consume() {
	defer p.wg.Done()
	for e := range p.itemCh {
		p.accept(e)
	}
}

func (p *Pipeline) accept(e entry) {
	if err := parser.ValidateItem(e.item); err != nil {
		p.metrics.addValidation("invalid_record")
		p.logger.Warn("rejecting item", slog.String("title", e.item.Title), slog.Any("error", err))
		return
	}

	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
	p.metrics.incrementAccepted()
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type metrics struct {
	mu         sync.Mutex
	accepted   int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementAccepted() {
	m.mu.Lock()
	m.accepted++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"accepted_items":    m.accepted,
		"validation_errors": copyValidation,
	}
}
