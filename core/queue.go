package core

import (
	"context"
	"sync"

	"github.com/encodeous/satmesh/state"
)

// Inbox is a node's bounded inbound queue. Any number of senders may push, a
// single node goroutine receives from C.
type Inbox struct {
	C      chan state.Packet
	policy state.OverflowPolicy
	mu     sync.Mutex
}

func NewInbox(capacity int, policy state.OverflowPolicy) *Inbox {
	return &Inbox{
		C:      make(chan state.Packet, capacity),
		policy: policy,
	}
}

// Push enqueues pkt without blocking. When the inbox is full, reject-new
// returns ErrQueueOverflow and drop-oldest evicts the head of the queue, which
// is returned as the victim.
func (q *Inbox) Push(pkt state.Packet) (*state.Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case q.C <- pkt:
		return nil, nil
	default:
	}
	if q.policy == state.RejectNew {
		return nil, state.ErrQueueOverflow
	}
	var victim *state.Packet
	select {
	case old := <-q.C:
		victim = &old
	default:
	}
	// only pushers hold mu, so the slot freed above stays free
	q.C <- pkt
	return victim, nil
}

func (q *Inbox) Len() int {
	return len(q.C)
}

// inflight counts packets accepted into an inbox and not yet fully handled, so
// the clock can wait for the mesh to go quiet.
type inflight struct {
	mu   sync.Mutex
	n    int
	zero chan struct{}
}

func newInflight() *inflight {
	z := make(chan struct{})
	close(z)
	return &inflight{zero: z}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.zero = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return
	}
	f.n--
	if f.n == 0 {
		close(f.zero)
	}
}

func (f *inflight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// wait blocks until nothing is in flight.
func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	z := f.zero
	f.mu.Unlock()
	select {
	case <-z:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
