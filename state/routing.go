package state

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

type RouteEntry struct {
	Destination NodeId
	NextHop     NodeId
	HopCount    int
	Cost        float64
	Timestamp   time.Time
}

func (r RouteEntry) String() string {
	return fmt.Sprintf("(nh: %s, hops: %d, cost: %s)", r.NextHop, r.HopCount, FormatCost(r.Cost))
}

// SameRoute compares everything except the refresh timestamp.
func (r RouteEntry) SameRoute(o RouteEntry) bool {
	return r.Destination == o.Destination && r.NextHop == o.NextHop &&
		r.HopCount == o.HopCount && r.Cost == o.Cost
}

// RoutingTable maps a destination to the selected route. A table is owned by a
// single node, callers outside the node only ever see clones.
type RoutingTable map[NodeId]RouteEntry

func (t RoutingTable) Clone() RoutingTable {
	return maps.Clone(t)
}

// Destinations returns the table keys in ascending order.
func (t RoutingTable) Destinations() []NodeId {
	return slices.Sorted(maps.Keys(t))
}

func (t RoutingTable) String() string {
	lines := make([]string, 0, len(t))
	for _, dst := range t.Destinations() {
		lines = append(lines, fmt.Sprintf("%s via %s", dst, t[dst]))
	}
	return strings.Join(lines, "\n")
}

type UpdateEntry struct {
	Destination NodeId
	Cost        float64
	HopCount    int
}

func (e UpdateEntry) String() string {
	return fmt.Sprintf("(dst: %s, hops: %d, cost: %s)", e.Destination, e.HopCount, FormatCost(e.Cost))
}

// RoutingUpdate is a distance vector advertised by Sender. Seqno increases by one
// for every frame a node sends.
type RoutingUpdate struct {
	Sender  NodeId
	Seqno   uint32
	Entries []UpdateEntry
}

// Advert is the last vector entry a neighbour advertised for a destination.
type Advert struct {
	Cost       float64
	HopCount   int
	ReceivedAt time.Time
}

type Neighbour struct {
	Id       NodeId
	Link     Link
	LastSeen time.Time
	Quality  float64
	Budget   int // remaining data messages this tick, negative is unlimited
	Adverts  map[NodeId]Advert
	Outbox   []*DataMessage
}

// RoutingPolicy holds the protocol knobs the routing algorithm reads.
type RoutingPolicy struct {
	HopCeiling    int
	CostModel     CostModel
	PoisonReverse bool
	RouteExpiry   time.Duration
}

// RouterState is owned by the node goroutine and must never be touched elsewhere.
type RouterState struct {
	Id         NodeId
	Now        time.Time
	Seqno      uint32
	Version    uint64 // incremented on every table change
	Routes     RoutingTable
	Neighbours []*Neighbour // sorted by id
	Policy     RoutingPolicy
}

func NewRouterState(id NodeId, policy RoutingPolicy) *RouterState {
	s := &RouterState{
		Id:         id,
		Routes:     make(RoutingTable),
		Neighbours: make([]*Neighbour, 0),
		Policy:     policy,
	}
	s.Routes[id] = RouteEntry{
		Destination: id,
		NextHop:     id,
	}
	return s
}

func (s *RouterState) GetNeighbour(node NodeId) *Neighbour {
	idx, ok := slices.BinarySearchFunc(s.Neighbours, node, func(n *Neighbour, id NodeId) int {
		return strings.Compare(string(n.Id), string(id))
	})
	if !ok {
		return nil
	}
	return s.Neighbours[idx]
}

// AddNeighbour inserts n keeping the neighbour list sorted.
func (s *RouterState) AddNeighbour(n *Neighbour) {
	idx, ok := slices.BinarySearchFunc(s.Neighbours, n.Id, func(n *Neighbour, id NodeId) int {
		return strings.Compare(string(n.Id), string(id))
	})
	if ok {
		s.Neighbours[idx] = n
		return
	}
	s.Neighbours = slices.Insert(s.Neighbours, idx, n)
}

func (s *RouterState) RemoveNeighbour(node NodeId) *Neighbour {
	idx := slices.IndexFunc(s.Neighbours, func(n *Neighbour) bool {
		return n.Id == node
	})
	if idx == -1 {
		return nil
	}
	n := s.Neighbours[idx]
	s.Neighbours = slices.Delete(s.Neighbours, idx, idx+1)
	return n
}

func (s *RouterState) StringRoutes() string {
	return s.Routes.String()
}

func FormatCost(c float64) string {
	if math.IsInf(c, 1) {
		return "inf"
	}
	return fmt.Sprintf("%g", c)
}
