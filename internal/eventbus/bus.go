package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is delivered to handlers.
type Event struct {
	Name string
	Data any
	At   time.Time
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and must not block.
type Handler func(Event)

// Cloner is implemented by payloads that hold pointers. Emit hands each
// handler its own CloneData result so one handler cannot alter what another
// sees.
type Cloner interface {
	CloneData() any
}

// Subscription identifies a registered handler. It is returned by On and
// consumed by Off.
type Subscription struct {
	Name string
	id   uint64
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe registry keyed by event name.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]registration
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]registration),
	}
}

// On registers h for the named event.
func (b *Bus) On(name string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[name] = append(b.handlers[name], registration{id: b.nextID, handler: h})

	return Subscription{Name: name, id: b.nextID}
}

// Off removes a handler. It reports whether the subscription was registered.
func (b *Bus) Off(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[sub.Name]
	for i, r := range regs {
		if r.id != sub.id {
			continue
		}
		// Copy so an in-flight Emit keeps its snapshot.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, sub.Name)
		} else {
			b.handlers[sub.Name] = next
		}
		return true
	}
	return false
}

// Emit invokes every handler for name in registration order. A panicking
// handler is logged and the remaining handlers still run.
func (b *Bus) Emit(name string, data any) {
	b.mu.RLock()
	regs := b.handlers[name]
	b.mu.RUnlock()

	if len(regs) == 0 {
		return
	}

	ev := Event{Name: name, Data: data, At: time.Now()}
	cloner, clone := data.(Cloner)
	for _, r := range regs {
		if clone {
			ev.Data = cloner.CloneData()
		}
		b.dispatch(r, ev)
	}
}

func (b *Bus) dispatch(r registration, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("event handler panicked",
				"event", ev.Name,
				"handler_id", r.id,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	r.handler(ev)
}

// count returns the number of handlers registered for name.
func (b *Bus) count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Channel adapts a subscription to a buffered channel for goroutine-based
// consumers. Events are dropped (and logged) when the buffer is full, so a
// slow reader never blocks the emitter. Call Off with the returned
// subscription to stop delivery; the channel is not closed.
func (b *Bus) Channel(name string, buffer int) (<-chan Event, Subscription) {
	ch := make(chan Event, buffer)
	sub := b.On(name, func(ev Event) {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event channel full, dropping event", "event", ev.Name)
		}
	})
	return ch, sub
}
