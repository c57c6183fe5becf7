package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/agentlink/internal/eventbus"
	"github.com/rickgao/agentlink/internal/protocol"
)

// Schema creates the latest-status table.
const Schema = `
CREATE TABLE IF NOT EXISTS agent_status_latest (
	endpoint        TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL DEFAULT '',
	running         BOOLEAN NOT NULL,
	tick_count      BIGINT NOT NULL,
	last_error      TEXT,
	target_lat      DOUBLE PRECISION,
	target_lon      DOUBLE PRECISION,
	target_depth    DOUBLE PRECISION,
	current_lat     DOUBLE PRECISION,
	current_lon     DOUBLE PRECISION,
	current_depth   DOUBLE PRECISION,
	agent_updated_at TEXT NOT NULL DEFAULT '',
	received_at     TIMESTAMPTZ NOT NULL
)`

const upsertSQL = `
INSERT INTO agent_status_latest (
	endpoint, session_id, running, tick_count, last_error,
	target_lat, target_lon, target_depth,
	current_lat, current_lon, current_depth,
	agent_updated_at, received_at
) VALUES (
	@endpoint, @session_id, @running, @tick_count, @last_error,
	@target_lat, @target_lon, @target_depth,
	@current_lat, @current_lon, @current_depth,
	@agent_updated_at, @received_at
)
ON CONFLICT (endpoint) DO UPDATE SET
	session_id = EXCLUDED.session_id,
	running = EXCLUDED.running,
	tick_count = EXCLUDED.tick_count,
	last_error = EXCLUDED.last_error,
	target_lat = EXCLUDED.target_lat,
	target_lon = EXCLUDED.target_lon,
	target_depth = EXCLUDED.target_depth,
	current_lat = EXCLUDED.current_lat,
	current_lon = EXCLUDED.current_lon,
	current_depth = EXCLUDED.current_depth,
	agent_updated_at = EXCLUDED.agent_updated_at,
	received_at = EXCLUDED.received_at`

// Execer is the subset of *pgxpool.Pool the writer uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config configures a SnapshotWriter.
type Config struct {
	Endpoint      string
	FlushInterval time.Duration
}

// Stats counts writer activity.
type Stats struct {
	Received  int64 // status events seen
	Coalesced int64 // events overwritten before reaching the database
	Flushes   int64
	Errors    int64
}

// SnapshotWriter upserts the latest status for one endpoint.
type SnapshotWriter struct {
	cfg    Config
	db     Execer
	logger *slog.Logger

	mu        sync.Mutex
	pending   *snapshotRow
	sessionID string
	stats     Stats

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type snapshotRow struct {
	Status     protocol.Status
	SessionID  string
	ReceivedAt time.Time
}

// NewSnapshotWriter creates a writer. Call Attach to feed it and Start to
// begin flushing.
func NewSnapshotWriter(cfg Config, db Execer, logger *slog.Logger) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the table if it does not exist.
func (w *SnapshotWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create agent_status_latest: %w", err)
	}
	return nil
}

// Attach subscribes the writer to status and connected events on bus.
func (w *SnapshotWriter) Attach(bus *eventbus.Bus) []eventbus.Subscription {
	return []eventbus.Subscription{
		bus.On(eventbus.EventStatus, w.handleEvent),
		bus.On(eventbus.EventConnected, w.handleEvent),
	}
}

// Start begins the periodic flush loop.
func (w *SnapshotWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"endpoint", w.cfg.Endpoint,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop halts the flush loop and writes any pending snapshot.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping snapshot writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	// Final flush
	return w.Flush(ctx)
}

// Stats returns current counters.
func (w *SnapshotWriter) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *SnapshotWriter) handleEvent(ev eventbus.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch data := ev.Data.(type) {
	case eventbus.Connected:
		w.sessionID = data.SessionID
	case eventbus.Status:
		w.stats.Received++
		if w.pending != nil {
			w.stats.Coalesced++
		}
		w.pending = &snapshotRow{
			Status:     data.Status,
			SessionID:  w.sessionID,
			ReceivedAt: ev.At,
		}
	}
}

func (w *SnapshotWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.Flush(w.ctx); err != nil {
				w.logger.Error("snapshot flush failed", "error", err)
			}
		}
	}
}

// Flush writes the pending snapshot, if any. A failed write is kept for the
// next flush unless a newer snapshot replaced it meanwhile.
func (w *SnapshotWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	row := w.pending
	w.pending = nil
	w.mu.Unlock()

	if row == nil {
		return nil
	}

	start := time.Now()
	if _, err := w.db.Exec(ctx, upsertSQL, w.args(row)); err != nil {
		w.mu.Lock()
		w.stats.Errors++
		if w.pending == nil {
			w.pending = row
		}
		w.mu.Unlock()
		return fmt.Errorf("upsert agent status: %w", err)
	}

	w.mu.Lock()
	w.stats.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed status snapshot",
		"endpoint", w.cfg.Endpoint,
		"tick_count", row.Status.HoloOcean.TickCount,
		"duration", time.Since(start),
	)
	return nil
}

func (w *SnapshotWriter) args(row *snapshotRow) pgx.NamedArgs {
	s := row.Status
	args := pgx.NamedArgs{
		"endpoint":         w.cfg.Endpoint,
		"session_id":       row.SessionID,
		"running":          s.HoloOcean.Running,
		"tick_count":       s.HoloOcean.TickCount,
		"last_error":       s.HoloOcean.LastError,
		"agent_updated_at": s.UpdatedAt,
		"received_at":      row.ReceivedAt,
	}
	putPosition(args, "target", s.Target)
	putPosition(args, "current", s.Current)
	return args
}

// putPosition stores a position's fields, or NULLs when it is absent.
func putPosition(args pgx.NamedArgs, prefix string, p *protocol.Position) {
	if p == nil {
		args[prefix+"_lat"] = nil
		args[prefix+"_lon"] = nil
		args[prefix+"_depth"] = nil
		return
	}
	args[prefix+"_lat"] = p.Lat
	args[prefix+"_lon"] = p.Lon
	args[prefix+"_depth"] = p.Depth
}
