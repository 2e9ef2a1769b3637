package state

import (
	"fmt"
	"time"
)

type EventKind int

const (
	NeighborUp EventKind = iota
	NeighborDown
	RouteChanged
	MessageDelivered
	MessageDropped
)

func (k EventKind) String() string {
	switch k {
	case NeighborUp:
		return "neighborUp"
	case NeighborDown:
		return "neighborDown"
	case RouteChanged:
		return "routeChanged"
	case MessageDelivered:
		return "messageDelivered"
	case MessageDropped:
		return "messageDropped"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

type DropReason string

const (
	ReasonTtlExpired       DropReason = "TtlExpired"
	ReasonRouteUnavailable DropReason = "RouteUnavailable"
	ReasonQueueOverflow    DropReason = "QueueOverflow"
)

// Err maps a drop reason to its sentinel error.
func (r DropReason) Err() error {
	switch r {
	case ReasonTtlExpired:
		return ErrTtlExpired
	case ReasonRouteUnavailable:
		return ErrRouteUnavailable
	case ReasonQueueOverflow:
		return ErrQueueOverflow
	}
	return nil
}

// Event is one record of the observability stream. Only the fields relevant to
// Kind are populated.
type Event struct {
	Time   time.Time
	NodeId NodeId
	Kind   EventKind

	Peer        NodeId // neighborUp/neighborDown
	Destination NodeId // routeChanged, message events
	NextHop     NodeId // routeChanged, empty when the route was removed
	Cost        float64
	MessageId   string
	Reason      DropReason
}

func (e Event) String() string {
	switch e.Kind {
	case NeighborUp, NeighborDown:
		return fmt.Sprintf("%s %s peer=%s", e.NodeId, e.Kind, e.Peer)
	case RouteChanged:
		return fmt.Sprintf("%s %s dst=%s nh=%s cost=%s", e.NodeId, e.Kind, e.Destination, e.NextHop, FormatCost(e.Cost))
	case MessageDropped:
		return fmt.Sprintf("%s %s msg=%s dst=%s reason=%s", e.NodeId, e.Kind, e.MessageId, e.Destination, e.Reason)
	}
	return fmt.Sprintf("%s %s msg=%s dst=%s", e.NodeId, e.Kind, e.MessageId, e.Destination)
}

// EventSink consumes the event stream. Implementations must be safe for use by
// every node goroutine at once.
type EventSink interface {
	Emit(ev Event)
}

type EventSinkFunc func(ev Event)

func (f EventSinkFunc) Emit(ev Event) {
	f(ev)
}
