package core

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/encodeous/satmesh/state"
)

// pendingMessage is a data message held until a route to its destination
// appears. Retries follow an exponential backoff in virtual time.
type pendingMessage struct {
	msg      *state.DataMessage
	attempts int
	next     time.Time
	deadline time.Time
	backoff  *backoff.ExponentialBackOff
}

func (r *NodeRouter) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.RetryBackoff.D()
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = r.PendingDeadline.D()
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// EnqueueMessage accepts a message originating at this node.
func (r *NodeRouter) EnqueueMessage(msg *state.DataMessage) {
	r.route(msg)
}

// nextHop returns the active neighbour the table forwards dst to.
func (r *NodeRouter) nextHop(dst state.NodeId) *state.Neighbour {
	entry, ok := r.Routes[dst]
	if !ok {
		return nil
	}
	return r.GetNeighbour(entry.NextHop)
}

// route makes the forwarding decision for msg at this node.
func (r *NodeRouter) route(msg *state.DataMessage) {
	if msg.Destination == r.Id {
		r.deliver(msg)
		return
	}
	neigh := r.nextHop(msg.Destination)
	if neigh == nil {
		r.hold(msg)
		return
	}
	if msg.TTL <= 0 {
		r.drop(msg, state.ReasonTtlExpired)
		return
	}
	msg.TTL--
	r.enqueueOutbox(neigh, msg)
}

func (r *NodeRouter) deliver(msg *state.DataMessage) {
	if len(r.Local) >= r.LocalCapacity {
		if r.OverflowPolicy == state.RejectNew {
			r.drop(msg, state.ReasonQueueOverflow)
			return
		}
		r.Env.Log.Warn("local queue full, evicting oldest delivered message", "msg", r.Local[0].Id)
		r.Local = r.Local[1:]
	}
	r.Local = append(r.Local, msg)
	r.Env.Log.Debug("delivered message", "msg", msg.Id, "from", msg.Source)
	emit(r.RouterState, r, state.Event{
		Kind:        state.MessageDelivered,
		Destination: msg.Destination,
		MessageId:   msg.Id,
	})
}

func (r *NodeRouter) drop(msg *state.DataMessage, reason state.DropReason) {
	r.Env.Log.Warn("dropped message", "msg", msg.Id, "dst", msg.Destination, "err", reason.Err())
	emit(r.RouterState, r, state.Event{
		Kind:        state.MessageDropped,
		Destination: msg.Destination,
		MessageId:   msg.Id,
		Reason:      reason,
	})
}

func (r *NodeRouter) hold(msg *state.DataMessage) {
	if len(r.Pending) >= r.PendingCapacity {
		if r.OverflowPolicy == state.RejectNew {
			r.drop(msg, state.ReasonQueueOverflow)
			return
		}
		victim := r.Pending[0]
		r.Pending = r.Pending[1:]
		r.drop(victim.msg, state.ReasonQueueOverflow)
	}
	b := r.newBackoff()
	r.Pending = append(r.Pending, &pendingMessage{
		msg:      msg,
		next:     r.Now.Add(b.NextBackOff()),
		deadline: r.Now.Add(r.PendingDeadline.D()),
		backoff:  b,
	})
	r.Env.Log.Debug("no route, holding message", "msg", msg.Id, "dst", msg.Destination)
}

// retryPending forwards held messages whose destination became reachable. When
// due is set, messages whose retry time has come use up an attempt, and those
// out of attempts or past their deadline are dropped.
func (r *NodeRouter) retryPending(due bool) {
	if len(r.Pending) == 0 {
		return
	}
	held := r.Pending
	r.Pending = make([]*pendingMessage, 0, len(held))
	for _, p := range held {
		if r.nextHop(p.msg.Destination) != nil {
			r.route(p.msg)
			continue
		}
		if due && !r.Now.Before(p.deadline) {
			r.drop(p.msg, state.ReasonRouteUnavailable)
			continue
		}
		if due && !r.Now.Before(p.next) {
			p.attempts++
			if p.attempts >= r.RetryLimit {
				r.drop(p.msg, state.ReasonRouteUnavailable)
				continue
			}
			p.next = r.Now.Add(p.backoff.NextBackOff())
		}
		r.Pending = append(r.Pending, p)
	}
}

func (r *NodeRouter) enqueueOutbox(neigh *state.Neighbour, msg *state.DataMessage) {
	if len(neigh.Outbox) >= r.OutboxCapacity {
		if r.OverflowPolicy == state.RejectNew {
			r.drop(msg, state.ReasonQueueOverflow)
			return
		}
		victim := neigh.Outbox[0]
		neigh.Outbox = neigh.Outbox[1:]
		r.drop(victim, state.ReasonQueueOverflow)
	}
	neigh.Outbox = append(neigh.Outbox, msg)
}

// drainOutbox sends queued data messages, highest priority first, until the
// link's per-tick budget is spent. It only fails when the link is gone, in
// which case the unsent messages stay queued for re-routing.
func (r *NodeRouter) drainOutbox(neigh *state.Neighbour) error {
	for len(neigh.Outbox) > 0 && neigh.Budget != 0 {
		idx := 0
		for i, m := range neigh.Outbox {
			if m.Priority > neigh.Outbox[idx].Priority {
				idx = i
			}
		}
		msg := neigh.Outbox[idx]
		err := r.transport.Send(r.Context, neigh.Id, state.Packet{From: r.Id, Data: msg})
		if errors.Is(err, state.ErrLinkInactive) {
			return err
		}
		neigh.Outbox = append(neigh.Outbox[:idx], neigh.Outbox[idx+1:]...)
		r.Stats.Sent++
		if err == nil {
			r.Stats.Accepted++
		}
		if err != nil && !errors.Is(err, state.ErrQueueOverflow) {
			r.Env.Log.Warn("failed to send message", "msg", msg.Id, "neigh", neigh.Id, "err", err)
		}
		if neigh.Budget > 0 {
			neigh.Budget--
		}
	}
	return nil
}
