package core

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/satmesh/state"
)

// EventBus fans every event out to synchronous sinks and to asynchronous
// subscribers. Subscribers that fall behind lose events, sinks never do.
type EventBus struct {
	sinks  []state.EventSink
	caster broadcast.Broadcaster

	mu     sync.RWMutex
	subs   map[<-chan any]chan any
	closed bool
}

func NewEventBus(buflen int, sinks ...state.EventSink) *EventBus {
	return &EventBus{
		sinks:  slices.DeleteFunc(slices.Clone(sinks), func(s state.EventSink) bool { return s == nil }),
		caster: broadcast.NewBroadcaster(buflen),
		subs:   make(map[<-chan any]chan any),
	}
}

func (b *EventBus) Emit(ev state.Event) {
	for _, sink := range b.sinks {
		sink.Emit(ev)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.closed {
		b.caster.TrySubmit(ev)
	}
}

// Subscribe returns a channel receiving every event as a state.Event.
func (b *EventBus) Subscribe(buflen int) <-chan any {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan any, buflen)
	if b.closed {
		close(ch)
		return ch
	}
	b.caster.Register(ch)
	b.subs[ch] = ch
	return ch
}

func (b *EventBus) Unsubscribe(ch <-chan any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[ch]
	if !ok || b.closed {
		return
	}
	delete(b.subs, ch)
	b.release(sub)
}

// release unregisters chs, draining them meanwhile so the broadcaster is
// never stuck on a subscriber that stopped reading.
func (b *EventBus) release(chs ...chan any) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, ch := range chs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ch:
				case <-done:
					return
				}
			}
		}()
	}
	for _, ch := range chs {
		b.caster.Unregister(ch)
	}
	close(done)
	wg.Wait()
	for _, ch := range chs {
		close(ch)
	}
}

// Close releases every subscriber and stops the broadcaster. Events emitted
// afterwards still reach the sinks.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.release(slices.Collect(maps.Values(b.subs))...)
	clear(b.subs)
	return b.caster.Close()
}

// Recorder is an event sink keeping every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *Recorder) Emit(ev state.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []state.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Filter returns the recorded events matching keep.
func (r *Recorder) Filter(keep func(ev state.Event) bool) []state.Event {
	return slices.DeleteFunc(r.Events(), func(ev state.Event) bool {
		return !keep(ev)
	})
}

func (r *Recorder) OfKind(kind state.EventKind) []state.Event {
	return r.Filter(func(ev state.Event) bool {
		return ev.Kind == kind
	})
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink logs every event. Drops are logged at warn level by the node itself.
func LogSink(logger *slog.Logger) state.EventSink {
	return state.EventSinkFunc(func(ev state.Event) {
		logger.Info(ev.Kind.String(), "t", ev.Time.Format(state.TopologyTimeLayout), "node", ev.NodeId, "event", ev.String())
	})
}
