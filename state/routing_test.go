package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRouterState_SelfRoute(t *testing.T) {
	rs := NewRouterState("a", DefaultSimCfg().Policy())
	assert.Equal(t, "a via (nh: a, hops: 0, cost: 0)", rs.StringRoutes())
}

func TestRouterState_Neighbours(t *testing.T) {
	rs := NewRouterState("a", DefaultSimCfg().Policy())
	for _, id := range []NodeId{"d", "b", "c"} {
		rs.AddNeighbour(&Neighbour{Id: id})
	}
	ids := make([]NodeId, 0)
	for _, n := range rs.Neighbours {
		ids = append(ids, n.Id)
	}
	assert.Equal(t, []NodeId{"b", "c", "d"}, ids)

	assert.NotNil(t, rs.GetNeighbour("c"))
	assert.Nil(t, rs.GetNeighbour("x"))

	removed := rs.RemoveNeighbour("c")
	assert.Equal(t, NodeId("c"), removed.Id)
	assert.Nil(t, rs.GetNeighbour("c"))
	assert.Nil(t, rs.RemoveNeighbour("c"))
	assert.Len(t, rs.Neighbours, 2)
}

func TestRoutingTable_Clone(t *testing.T) {
	table := RoutingTable{
		"b": {Destination: "b", NextHop: "b", HopCount: 1, Cost: 1},
	}
	clone := table.Clone()
	clone["c"] = RouteEntry{Destination: "c", NextHop: "b", HopCount: 2, Cost: 2}
	assert.Len(t, table, 1)
	assert.Equal(t, "b via (nh: b, hops: 1, cost: 1)\nc via (nh: b, hops: 2, cost: 2)", clone.String())
}

func TestRouteEntry_SameRoute(t *testing.T) {
	a := RouteEntry{Destination: "b", NextHop: "b", HopCount: 1, Cost: 1, Timestamp: time.Unix(10, 0)}
	b := a
	b.Timestamp = time.Unix(20, 0)
	assert.True(t, a.SameRoute(b))
	b.Cost = 2
	assert.False(t, a.SameRoute(b))
}

func TestLink_ActiveAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := Link{Source: "a", Destination: "b", StartTime: start, EndTime: start.Add(time.Minute)}
	assert.False(t, l.ActiveAt(start.Add(-time.Second)))
	assert.True(t, l.ActiveAt(start))
	assert.True(t, l.ActiveAt(start.Add(59*time.Second)))
	assert.False(t, l.ActiveAt(start.Add(time.Minute)))
}

func TestLink_Connects(t *testing.T) {
	l := Link{Source: "a", Destination: "b"}
	assert.True(t, l.Connects("a", "b"))
	assert.True(t, l.Connects("b", "a"))
	assert.Equal(t, NodeId("b"), l.Other("a"))
	assert.Equal(t, NodeId("a"), l.Other("b"))

	l.Directed = true
	assert.True(t, l.Connects("a", "b"))
	assert.False(t, l.Connects("b", "a"))
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "inf", FormatCost(INF))
	assert.Equal(t, "2.5", FormatCost(2.5))
}
