package perf

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.Emit(state.Event{NodeId: "a", Kind: state.RouteChanged, Destination: "b"})
	c.Emit(state.Event{NodeId: "a", Kind: state.RouteChanged, Destination: "c"})
	c.Emit(state.Event{NodeId: "b", Kind: state.MessageDropped, Reason: state.ReasonTtlExpired})
	c.Emit(state.Event{NodeId: "b", Kind: state.NeighborUp, Peer: "a"})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Events.WithLabelValues("routeChanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Events.WithLabelValues("neighborUp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Dropped.WithLabelValues("TtlExpired")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RouteChanges.WithLabelValues("a")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.RouteChanges.WithLabelValues("b")))
}

func TestCollectorObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	c.ObserveStep(3*time.Millisecond, now)
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(c.SimTime))
	assert.Equal(t, 1, testutil.CollectAndCount(c.StepDuration))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "satmesh_step_duration_seconds_count 1"))
}

func TestNewCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.Emit(state.Event{NodeId: "a", Kind: state.NeighborDown})
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Events.WithLabelValues("neighborDown")))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Emit(state.Event{Kind: state.RouteChanged})
		c.ObserveStep(time.Second, time.Now())
	})
}
