package core

// Distributed Bellman-Ford over time-windowed links, in the manner of RIP
// (RFC 2453): split horizon with poison reverse, triggered updates and a hop
// ceiling bounding count to infinity.

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/encodeous/satmesh/state"
	"github.com/samber/lo"
)

type RouterEvent int

// trace events

const (
	RouteImproved RouterEvent = iota
	RouteRegressed
	RouteAdded
	RouteRetracted
	StaleRouteDropped
	HopCeilingExceeded
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	UnknownNeighbour
)

func (e RouterEvent) String() string {
	switch e {
	case RouteImproved:
		return "RouteImproved"
	case RouteRegressed:
		return "RouteRegressed"
	case RouteAdded:
		return "RouteAdded"
	case RouteRetracted:
		return "RouteRetracted"
	case StaleRouteDropped:
		return "StaleRouteDropped"
	case HopCeilingExceeded:
		return "HopCeilingExceeded"
	case InconsistentState:
		return "InconsistentState"
	case UnknownNeighbour:
		return "UnknownNeighbour"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// Router is an interface that defines the underlying router operations
type Router interface {
	// SendRouteUpdate queues an entry for neigh. A later entry for the same
	// destination replaces an unsent one.
	SendRouteUpdate(neigh state.NodeId, entry state.UpdateEntry)
	Emit(ev state.Event)
	Log(event RouterEvent, desc string, args ...any)
}

func emit(s *state.RouterState, r Router, ev state.Event) {
	ev.Time = s.Now
	ev.NodeId = s.Id
	r.Emit(ev)
}

// LinkCost is the cost of crossing the link to n.
func LinkCost(s *state.RouterState, n *state.Neighbour) float64 {
	if s.Policy.CostModel == state.CostQuality {
		if n.Quality <= 0 {
			return state.INF
		}
		return 1 / n.Quality
	}
	return 1
}

func neighbourQuality(s *state.RouterState, id state.NodeId) float64 {
	n := s.GetNeighbour(id)
	if n == nil {
		return 0
	}
	return n.Quality
}

// ShouldSwitch reports whether newRoute is preferred over curRoute. Equal costs
// are broken by hop count, then next hop link quality, then next hop id.
func ShouldSwitch(s *state.RouterState, curRoute, newRoute state.RouteEntry) bool {
	if newRoute.Cost != curRoute.Cost {
		return newRoute.Cost < curRoute.Cost
	}
	if newRoute.HopCount != curRoute.HopCount {
		return newRoute.HopCount < curRoute.HopCount
	}
	if newRoute.NextHop == curRoute.NextHop {
		return false
	}
	nq, cq := neighbourQuality(s, newRoute.NextHop), neighbourQuality(s, curRoute.NextHop)
	if nq != cq {
		return nq > cq
	}
	return strings.Compare(string(newRoute.NextHop), string(curRoute.NextHop)) < 0
}

// SelectBest picks the best route to dst among the direct links and the
// adverts cached from every active neighbour.
func SelectBest(s *state.RouterState, r Router, dst state.NodeId) (state.RouteEntry, bool) {
	var best state.RouteEntry
	found := false
	consider := func(cand state.RouteEntry) {
		if math.IsInf(cand.Cost, 1) {
			return
		}
		if cand.HopCount > s.Policy.HopCeiling {
			r.Log(HopCeilingExceeded, "candidate ignored", "dst", dst, "nh", cand.NextHop, "hops", cand.HopCount)
			return
		}
		if !found || ShouldSwitch(s, best, cand) {
			best = cand
			found = true
		}
	}
	for _, n := range s.Neighbours {
		lc := LinkCost(s, n)
		if n.Id == dst {
			consider(state.RouteEntry{
				Destination: dst,
				NextHop:     n.Id,
				HopCount:    1,
				Cost:        lc,
				Timestamp:   n.LastSeen,
			})
		}
		adv, ok := n.Adverts[dst]
		if !ok {
			continue
		}
		consider(state.RouteEntry{
			Destination: dst,
			NextHop:     n.Id,
			HopCount:    adv.HopCount + 1,
			Cost:        lc + adv.Cost,
			Timestamp:   adv.ReceivedAt,
		})
	}
	return best, found
}

// advertisementFor returns what we tell neigh about route, applying split
// horizon. triggered forces a retraction towards a new next hop even without
// poison reverse, so the neighbour drops what we told it before.
func advertisementFor(s *state.RouterState, route state.RouteEntry, neigh state.NodeId, triggered bool) (state.UpdateEntry, bool) {
	entry := state.UpdateEntry{
		Destination: route.Destination,
		Cost:        route.Cost,
		HopCount:    route.HopCount,
	}
	if route.NextHop == neigh && route.Destination != s.Id {
		if !s.Policy.PoisonReverse && !triggered {
			return entry, false
		}
		entry.Cost = state.INF
		entry.HopCount = s.Policy.HopCeiling
	}
	return entry, true
}

func broadcastRoute(s *state.RouterState, r Router, route state.RouteEntry) {
	for _, n := range s.Neighbours {
		if entry, ok := advertisementFor(s, route, n.Id, true); ok {
			r.SendRouteUpdate(n.Id, entry)
		}
	}
}

func broadcastRetraction(s *state.RouterState, r Router, dst state.NodeId) {
	for _, n := range s.Neighbours {
		r.SendRouteUpdate(n.Id, state.UpdateEntry{
			Destination: dst,
			Cost:        state.INF,
			HopCount:    s.Policy.HopCeiling,
		})
	}
}

func setRoute(s *state.RouterState, r Router, route state.RouteEntry) {
	old, exists := s.Routes[route.Destination]
	if exists && old.SameRoute(route) {
		old.Timestamp = route.Timestamp
		s.Routes[route.Destination] = old
		return
	}
	switch {
	case !exists:
		r.Log(RouteAdded, "new route", "dst", route.Destination, "route", route)
	case route.Cost < old.Cost || route.Cost == old.Cost && route.HopCount <= old.HopCount:
		r.Log(RouteImproved, "route improved", "dst", route.Destination, "old", old, "new", route)
	default:
		r.Log(RouteRegressed, "route regressed", "dst", route.Destination, "old", old, "new", route)
	}
	s.Routes[route.Destination] = route
	s.Version++
	emit(s, r, state.Event{
		Kind:        state.RouteChanged,
		Destination: route.Destination,
		NextHop:     route.NextHop,
		Cost:        route.Cost,
	})
	broadcastRoute(s, r, route)
}

// invalidate removes the route to dst and queues an INF advertisement to every
// neighbour. The table never holds INF entries.
func invalidate(s *state.RouterState, r Router, dst state.NodeId) {
	old, ok := s.Routes[dst]
	if !ok {
		return
	}
	if dst == s.Id {
		r.Log(InconsistentState, "attempted to retract the self route")
		return
	}
	delete(s.Routes, dst)
	s.Version++
	r.Log(RouteRetracted, "route retracted", "dst", dst, "old", old)
	emit(s, r, state.Event{
		Kind:        state.RouteChanged,
		Destination: dst,
		Cost:        state.INF,
	})
	broadcastRetraction(s, r, dst)
}

// recompute re-evaluates the route to dst from the cached adverts.
func recompute(s *state.RouterState, r Router, dst state.NodeId) {
	if dst == s.Id {
		return
	}
	best, ok := SelectBest(s, r, dst)
	if !ok {
		invalidate(s, r, dst)
		return
	}
	setRoute(s, r, best)
}

// HandleNeighbourUp registers a newly active link, installs the direct route
// and pushes the whole table to the new neighbour.
func HandleNeighbourUp(s *state.RouterState, r Router, link state.NeighbourLink) *state.Neighbour {
	n := &state.Neighbour{
		Id:       link.Peer,
		Link:     link.Link,
		LastSeen: s.Now,
		Quality:  link.Link.Quality,
		Budget:   budgetOf(link.Link),
		Adverts:  make(map[state.NodeId]state.Advert),
		Outbox:   make([]*state.DataMessage, 0),
	}
	s.AddNeighbour(n)
	emit(s, r, state.Event{Kind: state.NeighborUp, Peer: n.Id})
	recompute(s, r, n.Id)
	PushFullTable(s, r, n.Id)
	return n
}

// HandleNeighbourRefresh is called on every tick for a link that stays active.
func HandleNeighbourRefresh(s *state.RouterState, r Router, n *state.Neighbour, link state.NeighbourLink) {
	n.LastSeen = s.Now
	n.Link = link.Link
	n.Budget = budgetOf(link.Link)
	if n.Quality == link.Link.Quality {
		recompute(s, r, n.Id)
		return
	}
	n.Quality = link.Link.Quality
	dsts := lo.Keys(n.Adverts)
	dsts = lo.Uniq(append(dsts, n.Id))
	slices.Sort(dsts)
	for _, dst := range dsts {
		recompute(s, r, dst)
	}
}

// HandleNeighbourDown removes an expired link. Routes through it are
// invalidated and replaced from other neighbours' adverts where possible. The
// messages still waiting in its outbox are returned for re-routing.
func HandleNeighbourDown(s *state.RouterState, r Router, peer state.NodeId) []*state.DataMessage {
	n := s.RemoveNeighbour(peer)
	if n == nil {
		r.Log(InconsistentState, "removing unknown neighbour", "neigh", peer)
		return nil
	}
	emit(s, r, state.Event{Kind: state.NeighborDown, Peer: peer})
	for _, dst := range s.Routes.Destinations() {
		if s.Routes[dst].NextHop != peer {
			continue
		}
		invalidate(s, r, dst)
		recompute(s, r, dst)
	}
	return n.Outbox
}

// DiffNeighbours compares the active links against the neighbour table.
func DiffNeighbours(s *state.RouterState, active []state.NeighbourLink) (added, kept []state.NeighbourLink, removed []state.NodeId) {
	seen := make(map[state.NodeId]struct{}, len(active))
	for _, l := range active {
		if l.Peer == s.Id {
			continue
		}
		seen[l.Peer] = struct{}{}
		if s.GetNeighbour(l.Peer) == nil {
			added = append(added, l)
		} else {
			kept = append(kept, l)
		}
	}
	for _, n := range s.Neighbours {
		if _, ok := seen[n.Id]; !ok {
			removed = append(removed, n.Id)
		}
	}
	return
}

// HandleRouteUpdate applies a distance vector received from an active
// neighbour.
func HandleRouteUpdate(s *state.RouterState, r Router, u state.RoutingUpdate) {
	n := s.GetNeighbour(u.Sender)
	if n == nil {
		r.Log(UnknownNeighbour, "update from inactive neighbour ignored", "from", u.Sender)
		return
	}
	changed := make([]state.NodeId, 0, len(u.Entries))
	for _, e := range u.Entries {
		if e.Destination == s.Id {
			continue
		}
		if math.IsInf(e.Cost, 1) || e.HopCount >= s.Policy.HopCeiling {
			delete(n.Adverts, e.Destination)
		} else {
			n.Adverts[e.Destination] = state.Advert{
				Cost:       e.Cost,
				HopCount:   e.HopCount,
				ReceivedAt: s.Now,
			}
		}
		changed = append(changed, e.Destination)
	}
	for _, dst := range changed {
		recompute(s, r, dst)
	}
}

// PushFullTable queues the whole table for neigh, applying split horizon.
func PushFullTable(s *state.RouterState, r Router, neigh state.NodeId) {
	for _, dst := range s.Routes.Destinations() {
		if entry, ok := advertisementFor(s, s.Routes[dst], neigh, false); ok {
			r.SendRouteUpdate(neigh, entry)
		}
	}
}

func FullTableUpdate(s *state.RouterState, r Router) {
	for _, n := range s.Neighbours {
		PushFullTable(s, r, n.Id)
	}
}

// ExpireRoutes forgets adverts that were not refreshed within RouteExpiry and
// re-evaluates the routes that relied on them.
func ExpireRoutes(s *state.RouterState, r Router) {
	affected := make([]state.NodeId, 0)
	for _, n := range s.Neighbours {
		for dst, adv := range n.Adverts {
			if s.Now.Sub(adv.ReceivedAt) > s.Policy.RouteExpiry {
				delete(n.Adverts, dst)
				affected = append(affected, dst)
				r.Log(StaleRouteDropped, "stale advert dropped", "neigh", n.Id, "dst", dst)
			}
		}
	}
	affected = lo.Uniq(affected)
	slices.Sort(affected)
	for _, dst := range affected {
		recompute(s, r, dst)
	}
}

func budgetOf(l state.Link) int {
	if l.Bandwidth <= 0 {
		return -1
	}
	return l.Bandwidth
}
