package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// StatusSource is the part of the agent client the poller drives.
type StatusSource interface {
	IsConnected() bool
	IsSubscribed() bool
	GetStatus() error
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
	}
}

// Stats counts poll outcomes.
type Stats struct {
	Requested int64
	Skipped   int64
	Errors    int64
}

// Poller issues get_status at an interval while the link is connected but
// not subscribed, so the status cache stays fresh without a push stream.
type Poller struct {
	cfg    Config
	source StatusSource
	logger *slog.Logger

	requested atomic.Int64
	skipped   atomic.Int64
	errors    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source StatusSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns poll counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Requested: p.requested.Load(),
		Skipped:   p.skipped.Load(),
		Errors:    p.errors.Load(),
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll requests one status frame if the link needs it.
func (p *Poller) poll() {
	if !p.source.IsConnected() || p.source.IsSubscribed() {
		p.skipped.Add(1)
		return
	}

	if err := p.source.GetStatus(); err != nil {
		p.errors.Add(1)
		p.logger.Warn("status poll failed", "err", err)
		return
	}
	p.requested.Add(1)
}
