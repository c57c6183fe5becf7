package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/agentlink/internal/eventbus"
	"github.com/rickgao/agentlink/internal/protocol"
)

type execCall struct {
	sql  string
	args []any
}

// fakeExecer records statements instead of talking to PostgreSQL.
type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecer) upserts() []pgx.NamedArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pgx.NamedArgs
	for _, c := range f.calls {
		if c.sql == upsertSQL {
			out = append(out, c.args[0].(pgx.NamedArgs))
		}
	}
	return out
}

func statusWithTicks(n int64) protocol.Status {
	return protocol.Status{
		Target:    &protocol.Position{Lat: 21.3, Lon: -157.8, Depth: 50},
		HoloOcean: protocol.RunState{Running: true, TickCount: n},
		UpdatedAt: "2024-01-01T12:00:00Z",
	}
}

func TestSnapshotWriter_FlushWritesLatestOnly(t *testing.T) {
	db := &fakeExecer{}
	bus := eventbus.New(nil)
	w := NewSnapshotWriter(Config{Endpoint: "ws://sim:8765", FlushInterval: time.Hour}, db, nil)
	w.Attach(bus)

	bus.Emit(eventbus.EventConnected, eventbus.Connected{Endpoint: "ws://sim:8765", SessionID: "sess-1"})
	bus.Emit(eventbus.EventStatus, eventbus.Status{Status: statusWithTicks(1)})
	bus.Emit(eventbus.EventStatus, eventbus.Status{Status: statusWithTicks(2)})
	bus.Emit(eventbus.EventStatus, eventbus.Status{Status: statusWithTicks(3)})

	require.NoError(t, w.Flush(context.Background()))

	rows := db.upserts()
	require.Len(t, rows, 1)
	assert.Equal(t, "ws://sim:8765", rows[0]["endpoint"])
	assert.Equal(t, "sess-1", rows[0]["session_id"])
	assert.Equal(t, int64(3), rows[0]["tick_count"])
	assert.Equal(t, true, rows[0]["running"])
	assert.Equal(t, 21.3, rows[0]["target_lat"])
	assert.Nil(t, rows[0]["current_lat"])

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.Received)
	assert.Equal(t, int64(2), stats.Coalesced)
	assert.Equal(t, int64(1), stats.Flushes)
}

func TestSnapshotWriter_FlushWithNothingPending(t *testing.T) {
	db := &fakeExecer{}
	w := NewSnapshotWriter(Config{Endpoint: "ws://sim:8765", FlushInterval: time.Hour}, db, nil)

	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, db.upserts())
}

func TestSnapshotWriter_FailedFlushRetained(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	bus := eventbus.New(nil)
	w := NewSnapshotWriter(Config{Endpoint: "ws://sim:8765", FlushInterval: time.Hour}, db, nil)
	w.Attach(bus)

	bus.Emit(eventbus.EventStatus, eventbus.Status{Status: statusWithTicks(7)})

	err := w.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert agent status")
	assert.Equal(t, int64(1), w.Stats().Errors)

	db.mu.Lock()
	db.err = nil
	db.mu.Unlock()

	require.NoError(t, w.Flush(context.Background()))
	rows := db.upserts()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(7), rows[1]["tick_count"])
}

func TestSnapshotWriter_StartStop(t *testing.T) {
	db := &fakeExecer{}
	bus := eventbus.New(nil)
	w := NewSnapshotWriter(Config{Endpoint: "ws://sim:8765", FlushInterval: 20 * time.Millisecond}, db, nil)
	w.Attach(bus)

	require.NoError(t, w.Start(context.Background()))
	bus.Emit(eventbus.EventStatus, eventbus.Status{Status: statusWithTicks(1)})

	assert.Eventually(t, func() bool { return len(db.upserts()) == 1 }, time.Second, 5*time.Millisecond)

	bus.Emit(eventbus.EventStatus, eventbus.Status{Status: statusWithTicks(2)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	rows := db.upserts()
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, int64(2), rows[len(rows)-1]["tick_count"])
}

func TestSnapshotWriter_EnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	w := NewSnapshotWriter(Config{Endpoint: "ws://sim:8765"}, db, nil)

	require.NoError(t, w.EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Equal(t, Schema, db.calls[0].sql)
}
