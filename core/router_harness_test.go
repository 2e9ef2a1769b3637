package core

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var harnessStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness records every call the routing algorithm makes.
type RouterHarness struct {
	actions []HarnessEvent
	events  []state.Event
}

func (h *RouterHarness) SendRouteUpdate(neigh state.NodeId, entry state.UpdateEntry) {
	h.actions = append(h.actions, MakeEvent("UPDATE_ROUTE", neigh, entry))
}

func (h *RouterHarness) Emit(ev state.Event) {
	h.events = append(h.events, ev)
	subject := ev.Destination
	if ev.Kind == state.NeighborUp || ev.Kind == state.NeighborDown {
		subject = ev.Peer
	}
	h.actions = append(h.actions, MakeEvent("EVENT", ev.Kind, subject))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears the recorded actions, except logs.
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns and clears the recorded router events.
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	rest := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		} else {
			rest = append(rest, action)
		}
	}
	h.actions = rest
	return x
}

func (h *RouterHarness) TakeEvents() []state.Event {
	x := h.events
	h.events = nil
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateApprox(0, 1e-9)) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func testPolicy() state.RoutingPolicy {
	return state.DefaultSimCfg().Policy()
}

func newTestRouter(id state.NodeId) *state.RouterState {
	s := state.NewRouterState(id, testPolicy())
	s.Now = harnessStart
	return s
}

func MakeLink(a, b state.NodeId, quality float64) state.NeighbourLink {
	return state.NeighbourLink{
		Peer: b,
		Link: state.Link{
			Source:      a,
			Destination: b,
			StartTime:   harnessStart,
			EndTime:     harnessStart.Add(time.Hour),
			LinkType:    "LEO_LEO",
			Quality:     quality,
		},
	}
}

// AddLinks brings up links from s to every peer with quality 1.
func AddLinks(s *state.RouterState, h *RouterHarness, peers ...state.NodeId) {
	for _, p := range peers {
		HandleNeighbourUp(s, h, MakeLink(s.Id, p, 1))
	}
}

// NeighUpdate delivers a single entry vector from neigh.
func (h *RouterHarness) NeighUpdate(s *state.RouterState, neigh, dst state.NodeId, cost float64, hops int) {
	s.Seqno++
	HandleRouteUpdate(s, h, state.RoutingUpdate{
		Sender: neigh,
		Seqno:  s.Seqno,
		Entries: []state.UpdateEntry{{
			Destination: dst,
			Cost:        cost,
			HopCount:    hops,
		}},
	})
}

func MakeEntry(dst state.NodeId, cost float64, hops int) state.UpdateEntry {
	return state.UpdateEntry{Destination: dst, Cost: cost, HopCount: hops}
}

func poisoned(dst state.NodeId) state.UpdateEntry {
	return MakeEntry(dst, state.INF, state.HopCeiling)
}
