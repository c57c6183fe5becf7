package connection

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/agentlink/internal/eventbus"
)

func testManagerConfig(url string) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Endpoint = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.PingInterval = 0
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 40 * time.Millisecond
	return cfg
}

// eventRecorder captures every lifecycle event emitted on a bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func recordEvents(bus *eventbus.Bus) *eventRecorder {
	r := &eventRecorder{}
	for _, name := range []string{
		eventbus.EventConnected,
		eventbus.EventDisconnected,
		eventbus.EventConnectionError,
	} {
		bus.On(name, func(ev eventbus.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *eventRecorder) named(name string) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestBackoff(t *testing.T) {
	base := 1000 * time.Millisecond
	max := 30000 * time.Millisecond

	want := []time.Duration{1000, 2000, 4000, 8000, 16000, 30000, 30000}
	for i, w := range want {
		attempt := i + 1
		assert.Equal(t, w*time.Millisecond, Backoff(attempt, base, max), "attempt %d", attempt)
	}

	assert.Equal(t, base, Backoff(0, base, max), "attempt below 1 is treated as 1")
	assert.Equal(t, max, Backoff(1000, base, max), "large attempts stay capped")
}

func TestBackoff_NonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := Backoff(attempt, 250*time.Millisecond, 7*time.Second)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 7*time.Second)
		prev = d
	}
}

func TestManager_ConnectDisconnect(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	m := NewManager(testManagerConfig(wsURL(server)), bus, nil, nil)

	assert.Equal(t, ReadyStateUninitialized, m.ReadyState())

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())
	assert.Equal(t, ReadyStateOpen, m.ReadyState())

	connected := rec.named(eventbus.EventConnected)
	require.Len(t, connected, 1)
	payload := connected[0].Data.(eventbus.Connected)
	assert.Equal(t, wsURL(server), payload.Endpoint)
	assert.NotEmpty(t, payload.SessionID)

	status := m.Status()
	assert.Equal(t, "connected", status.State)
	assert.Equal(t, "OPEN", status.ReadyState)
	assert.Equal(t, payload.SessionID, status.SessionID)
	assert.Equal(t, 10, status.MaxReconnectAttempts)

	m.Disconnect()
	assert.False(t, m.IsConnected())
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, ReadyStateClosed, m.ReadyState())

	disconnected := rec.named(eventbus.EventDisconnected)
	require.Len(t, disconnected, 1)
	assert.False(t, disconnected[0].Data.(eventbus.Disconnected).WillReconnect)
}

func TestManager_ConnectWhileConnectedIsNoop(t *testing.T) {
	var sockets atomic.Int32
	server := mockWSServer(t, func(id int, conn *websocket.Conn) {
		sockets.Add(1)
		holdOpen(id, conn)
	})
	defer server.Close()

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	m := NewManager(testManagerConfig(wsURL(server)), bus, nil, nil)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), sockets.Load())
	assert.Len(t, rec.named(eventbus.EventConnected), 1)
}

func TestManager_ConcurrentConnectOpensOneSocket(t *testing.T) {
	var sockets atomic.Int32
	server := mockWSServer(t, func(id int, conn *websocket.Conn) {
		sockets.Add(1)
		holdOpen(id, conn)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil, nil, nil)
	defer m.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Connect(context.Background())
		}()
	}
	wg.Wait()

	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), sockets.Load())
}

func TestManager_DisconnectWhenIdleIsNoop(t *testing.T) {
	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), bus, nil, nil)

	assert.NotPanics(t, m.Disconnect)
	assert.NotPanics(t, m.Disconnect)
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, rec.named(eventbus.EventDisconnected))
}

func TestManager_SendNotConnected(t *testing.T) {
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), nil, nil, nil)

	assert.ErrorIs(t, m.Send([]byte(`{"type":"get_status"}`)), ErrNotConnected)
}

func TestManager_FramesDeliveredInOrder(t *testing.T) {
	frames := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`, `{"n":4}`}

	server := mockWSServer(t, func(id int, conn *websocket.Conn) {
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		holdOpen(id, conn)
	})
	defer server.Close()

	var mu sync.Mutex
	var got []string
	onFrame := func(msg TimestampedMessage) {
		mu.Lock()
		got = append(got, string(msg.Data))
		mu.Unlock()
	}

	m := NewManager(testManagerConfig(wsURL(server)), nil, onFrame, nil)
	defer m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(frames)
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, frames, got)
}

func TestManager_SubscribedFlag(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil, nil, nil)

	assert.False(t, m.SetSubscribed(true), "cannot subscribe while disconnected")
	assert.False(t, m.IsSubscribed())

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.SetSubscribed(true))
	assert.True(t, m.IsSubscribed())

	m.Disconnect()
	assert.False(t, m.IsSubscribed(), "disconnect clears subscription")
}

func TestManager_ReconnectsAfterUncleanClose(t *testing.T) {
	var sockets atomic.Int32
	server := mockWSServer(t, func(id int, conn *websocket.Conn) {
		sockets.Add(1)
		if id == 1 {
			// Drop the first socket without a close handshake.
			conn.UnderlyingConn().Close()
			return
		}
		holdOpen(id, conn)
	})
	defer server.Close()

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	cfg := testManagerConfig(wsURL(server))
	cfg.ReconnectBaseDelay = 100 * time.Millisecond
	cfg.ReconnectMaxDelay = time.Second

	m := NewManager(cfg, bus, nil, nil)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return len(rec.named(eventbus.EventDisconnected)) == 1
	}, time.Second, 5*time.Millisecond)

	disc := rec.named(eventbus.EventDisconnected)[0]
	payload := disc.Data.(eventbus.Disconnected)
	assert.True(t, payload.WillReconnect)
	assert.Error(t, payload.Err)

	require.Eventually(t, func() bool {
		return len(rec.named(eventbus.EventConnected)) == 2
	}, 2*time.Second, 5*time.Millisecond)

	connected := rec.named(eventbus.EventConnected)
	gap := connected[1].At.Sub(disc.At)
	assert.GreaterOrEqual(t, gap, 90*time.Millisecond, "reconnect should wait for the base delay")

	assert.Equal(t, int32(2), sockets.Load())
	assert.Equal(t, 0, m.Status().ReconnectAttempts, "attempts reset after a successful connection")
	assert.True(t, m.IsConnected())
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	url := wsURL(server)
	server.Close() // Every dial is refused

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	cfg := testManagerConfig(url)
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.ReconnectMaxDelay = 4 * time.Millisecond
	cfg.MaxReconnectAttempts = 10

	m := NewManager(cfg, bus, nil, nil)
	defer m.Disconnect()

	err := m.Connect(context.Background())
	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, cerr.Attempt)

	require.Eventually(t, func() bool {
		for _, ev := range rec.named(eventbus.EventConnectionError) {
			if ev.Data.(eventbus.ConnectionError).Exhausted {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	// Initial attempt + 10 reconnects + the exhaustion notice.
	errs := rec.named(eventbus.EventConnectionError)
	require.Len(t, errs, 12)
	for i := 0; i < 11; i++ {
		assert.Equal(t, i, errs[i].Data.(eventbus.ConnectionError).Attempt)
	}
	last := errs[11].Data.(eventbus.ConnectionError)
	assert.ErrorIs(t, last.Err, ErrReconnectExhausted)

	// Nothing further is scheduled.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.named(eventbus.EventConnectionError), 12)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 10, m.Status().ReconnectAttempts)
}

func TestManager_ManualReconnectResetsAttempts(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	url := wsURL(server)
	server.Close()

	cfg := testManagerConfig(url)
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.ReconnectMaxDelay = time.Millisecond
	cfg.MaxReconnectAttempts = 3

	bus := eventbus.New(nil)
	exhausted := make(chan struct{}, 1)
	bus.On(eventbus.EventConnectionError, func(ev eventbus.Event) {
		if ev.Data.(eventbus.ConnectionError).Exhausted {
			exhausted <- struct{}{}
		}
	})

	m := NewManager(cfg, bus, nil, nil)
	defer m.Disconnect()

	_ = m.Connect(context.Background())
	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected attempts to be exhausted")
	}
	assert.Equal(t, 3, m.Status().ReconnectAttempts)

	// Manual reconnect against a dead endpoint restarts the episode from 0.
	err := m.Reconnect(context.Background())
	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, cerr.Attempt)

	m.Disconnect()
	assert.Equal(t, StateIdle, m.State())
}

func TestManager_DisconnectCancelsPendingReconnect(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	url := wsURL(server)
	server.Close()

	cfg := testManagerConfig(url)
	cfg.ReconnectBaseDelay = 200 * time.Millisecond
	cfg.ReconnectMaxDelay = 200 * time.Millisecond

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	m := NewManager(cfg, bus, nil, nil)

	_ = m.Connect(context.Background())
	assert.Equal(t, StateReconnecting, m.State())

	m.Disconnect()
	time.Sleep(300 * time.Millisecond)

	assert.Len(t, rec.named(eventbus.EventConnectionError), 1, "no reconnect after Disconnect")
	assert.Equal(t, StateIdle, m.State())
}

func TestManager_ReconnectWhileConnected(t *testing.T) {
	var sockets atomic.Int32
	server := mockWSServer(t, func(id int, conn *websocket.Conn) {
		sockets.Add(1)
		holdOpen(id, conn)
	})
	defer server.Close()

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	m := NewManager(testManagerConfig(wsURL(server)), bus, nil, nil)
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background()))
	first := m.Status().SessionID

	require.NoError(t, m.Reconnect(context.Background()))
	assert.True(t, m.IsConnected())
	assert.NotEqual(t, first, m.Status().SessionID)
	assert.Len(t, rec.named(eventbus.EventConnected), 2)
	assert.Len(t, rec.named(eventbus.EventDisconnected), 1)
}

// silentListener accepts TCP connections and never answers the handshake.
func silentListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln
}

func TestManager_ConnectTimeoutFeedsReconnect(t *testing.T) {
	ln := silentListener(t)

	cfg := testManagerConfig("ws://" + ln.Addr().String())
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.ReconnectBaseDelay = time.Hour
	cfg.ReconnectMaxDelay = time.Hour

	bus := eventbus.New(nil)
	rec := recordEvents(bus)
	m := NewManager(cfg, bus, nil, nil)
	defer m.Disconnect()

	start := time.Now()
	err := m.Connect(context.Background())
	elapsed := time.Since(start)

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, cerr.Attempt)
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second, "handshake must be abandoned at the connect timeout")

	errs := rec.named(eventbus.EventConnectionError)
	require.Len(t, errs, 1)
	assert.False(t, errs[0].Data.(eventbus.ConnectionError).Exhausted)
	assert.Empty(t, rec.named(eventbus.EventConnected))
	assert.Equal(t, StateReconnecting, m.State())
}

func TestManager_ClientConfig(t *testing.T) {
	cfg := testManagerConfig("ws://agent:8765")
	cfg.AuthToken = "tok"
	cfg.ConnectTimeout = 3 * time.Second
	cfg.WriteTimeout = 0
	cfg.PingTimeout = 0
	cfg.MessageBufferSize = 0

	got := NewManager(cfg, eventbus.New(nil), nil, nil).clientConfig()
	defaults := DefaultClientConfig()

	assert.Equal(t, "ws://agent:8765", got.URL)
	assert.Equal(t, "tok", got.AuthToken)
	assert.Equal(t, 3*time.Second, got.HandshakeTimeout)
	assert.Zero(t, got.PingInterval, "keepalive stays disabled")
	assert.Equal(t, defaults.WriteTimeout, got.WriteTimeout)
	assert.Equal(t, defaults.PingTimeout, got.PingTimeout)
	assert.Equal(t, defaults.BufferSize, got.BufferSize)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "NOT_INITIALIZED", ReadyStateUninitialized.String())
	assert.Equal(t, "CLOSING", ReadyStateClosing.String())
}
