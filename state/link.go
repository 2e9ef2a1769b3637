package state

import (
	"fmt"
	"time"
)

type NodeId string

// Link is a single visibility window between two satellites. Links are never
// mutated after the catalog is loaded.
type Link struct {
	Source      NodeId
	Destination NodeId
	StartTime   time.Time
	EndTime     time.Time
	LinkType    string
	Quality     float64 // (0, 1], higher is better
	Bandwidth   int     // data messages per tick, 0 is unlimited
	Directed    bool
}

// ActiveAt reports whether t falls in [StartTime, EndTime).
func (l Link) ActiveAt(t time.Time) bool {
	return !t.Before(l.StartTime) && t.Before(l.EndTime)
}

// Other returns the opposite end of the link as seen from id.
func (l Link) Other(id NodeId) NodeId {
	if l.Source == id {
		return l.Destination
	}
	return l.Source
}

// Connects reports whether the link carries traffic from a to b.
func (l Link) Connects(a, b NodeId) bool {
	if l.Source == a && l.Destination == b {
		return true
	}
	return !l.Directed && l.Source == b && l.Destination == a
}

func (l Link) String() string {
	arrow := "<->"
	if l.Directed {
		arrow = "->"
	}
	return fmt.Sprintf("%s %s %s [%s, %s) %s q=%.2f",
		l.Source, arrow, l.Destination,
		l.StartTime.Format(TopologyTimeLayout), l.EndTime.Format(TopologyTimeLayout),
		l.LinkType, l.Quality)
}

// NeighbourLink is one end's view of an active link.
type NeighbourLink struct {
	Peer NodeId
	Link Link
}
