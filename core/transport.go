package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/encodeous/satmesh/perf"
	"github.com/encodeous/satmesh/state"
	"github.com/encodeous/satmesh/topology"
)

// Transport carries packets between satellites.
type Transport interface {
	// Send delivers pkt into the inbox of to. It fails with ErrLinkInactive when
	// no link from the sender to to is active at the current virtual time.
	Send(ctx context.Context, to state.NodeId, pkt state.Packet) error
}

// memTransport delivers packets in memory, checking every send against the
// catalog at the current virtual time.
type memTransport struct {
	catalog *topology.Catalog
	inboxes map[state.NodeId]*Inbox
	tracker *inflight
	events  state.EventSink
	log     *slog.Logger

	mu  sync.RWMutex
	now time.Time
}

func newMemTransport(catalog *topology.Catalog, tracker *inflight, events state.EventSink, log *slog.Logger) *memTransport {
	return &memTransport{
		catalog: catalog,
		inboxes: make(map[state.NodeId]*Inbox),
		tracker: tracker,
		events:  events,
		log:     log,
	}
}

func (t *memTransport) SetNow(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *memTransport) Now() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now
}

func (t *memTransport) register(id state.NodeId, inbox *Inbox) {
	t.inboxes[id] = inbox
}

func (t *memTransport) Send(ctx context.Context, to state.NodeId, pkt state.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := t.Now()
	inbox, ok := t.inboxes[to]
	if !ok {
		return fmt.Errorf("%w: %s", state.ErrUnknownNode, to)
	}
	if !t.catalog.Connected(pkt.From, to, now) {
		return fmt.Errorf("%w: %s -> %s", state.ErrLinkInactive, pkt.From, to)
	}
	t.tracker.add()
	victim, err := inbox.Push(pkt)
	if err != nil {
		t.tracker.done()
		t.overflow(to, now, pkt)
		return err
	}
	if victim != nil {
		t.tracker.done()
		t.overflow(to, now, *victim)
	}
	if pkt.Frame != nil {
		perf.FramesPerSecond.Add(1)
		perf.FrameBytesPerSecond.Add(float64(len(pkt.Frame)))
		perf.FrameSize.Add(float64(len(pkt.Frame)))
	} else {
		perf.MessagesPerSecond.Add(1)
	}
	return nil
}

// overflow reports a packet lost to a full inbox on behalf of its receiver.
func (t *memTransport) overflow(node state.NodeId, now time.Time, pkt state.Packet) {
	if pkt.Data == nil {
		t.log.Debug("routing frame lost to full inbox", "node", node, "from", pkt.From)
		return
	}
	t.log.Warn("dropped message", "node", node, "msg", pkt.Data.Id, "err", state.ErrQueueOverflow)
	t.events.Emit(state.Event{
		Time:        now,
		NodeId:      node,
		Kind:        state.MessageDropped,
		Destination: pkt.Data.Destination,
		MessageId:   pkt.Data.Id,
		Reason:      state.ReasonQueueOverflow,
	})
}
