package topology

import (
	"math"
	"testing"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func rec(src, dst string, start, end int) Record {
	return Record{Source: src, Destination: dst, StartTime: at(start), EndTime: at(end), LinkType: "LEO_LEO"}
}

func TestLoad_EndBeforeStart(t *testing.T) {
	cat, err := Load([]Record{rec("1", "2", 0, 10), rec("2", "3", 10, 5)})
	assert.ErrorIs(t, err, state.ErrMalformedTopologyRecord)
	assert.ErrorContains(t, err, "record 1")
	assert.Nil(t, cat)

	_, err = Load([]Record{rec("1", "2", 5, 5)})
	assert.ErrorIs(t, err, state.ErrMalformedTopologyRecord)
}

func TestLoad_InvalidRecords(t *testing.T) {
	bad := []Record{
		rec("", "2", 0, 10),
		rec("1 a", "2", 0, 10),
		rec("1", "1", 0, 10),
		rec("SAT#1", "2", 0, 10),
		rec("1", "sat\\2", 0, 10),
		{Source: "1", Destination: "2", StartTime: at(0), EndTime: at(1), Quality: 1.5},
		{Source: "1", Destination: "2", StartTime: at(0), EndTime: at(1), Quality: math.NaN()},
		{Source: "1", Destination: "2", StartTime: at(0), EndTime: at(1), Quality: math.Inf(1)},
		{Source: "1", Destination: "2", StartTime: at(0), EndTime: at(1), Bandwidth: -1},
	}
	for _, r := range bad {
		cat, err := Load([]Record{r})
		assert.ErrorIs(t, err, state.ErrMalformedTopologyRecord, "record %+v", r)
		assert.Nil(t, cat)
	}
}

func TestCatalog_ActiveLinksAt(t *testing.T) {
	records := []Record{
		rec("1", "2", 0, 10),
		rec("2", "3", 0, 5),
		rec("3", "4", 5, 20),
		rec("1", "4", 12, 13),
	}
	cat, err := Load(records)
	require.NoError(t, err)

	for sec := -2; sec < 25; sec++ {
		want := make([]Record, 0)
		for _, r := range records {
			if !at(sec).Before(r.StartTime) && at(sec).Before(r.EndTime) {
				want = append(want, r)
			}
		}
		got := cat.ActiveLinksAt(at(sec))
		assert.Len(t, got, len(want), "t=%d", sec)
		for _, l := range got {
			assert.True(t, l.ActiveAt(at(sec)))
		}
	}

	start, end := cat.Span()
	assert.Equal(t, at(0), start)
	assert.Equal(t, at(20), end)
	assert.Equal(t, []state.NodeId{"1", "2", "3", "4"}, cat.Nodes())
}

func TestCatalog_NeighboursAt(t *testing.T) {
	best := rec("1", "2", 0, 10)
	best.Quality = 0.9
	worse := rec("2", "1", 0, 10)
	worse.Quality = 0.5
	directed := rec("3", "1", 0, 10)
	directed.Directed = true
	cat, err := Load([]Record{worse, best, directed})
	require.NoError(t, err)

	adj := cat.NeighboursAt(at(1))
	require.Len(t, adj["1"], 1)
	assert.Equal(t, state.NodeId("2"), adj["1"][0].Peer)
	assert.Equal(t, 0.9, adj["1"][0].Link.Quality)
	require.Len(t, adj["3"], 1)
	assert.Equal(t, state.NodeId("1"), adj["3"][0].Peer)
	assert.Len(t, adj["2"], 1)

	assert.True(t, cat.Connected("3", "1", at(1)))
	assert.False(t, cat.Connected("1", "3", at(1)))
	assert.False(t, cat.Connected("1", "2", at(10)))
	assert.Empty(t, cat.NeighboursAt(at(10)))
}

func TestCatalog_Filter(t *testing.T) {
	ground := rec("1", "gs", 0, 10)
	ground.LinkType = "LEO_GROUND"
	cat, err := Load([]Record{rec("1", "2", 0, 10), ground})
	require.NoError(t, err)

	leo := cat.Filter(LinkTypes("LEO_LEO"))
	assert.Len(t, leo.ActiveLinksAt(at(0)), 1)
	assert.Equal(t, []state.NodeId{"1", "2"}, leo.Nodes())
	assert.Len(t, cat.Filter(LinkTypes()).Links(), 2)
	// the source catalog is untouched
	assert.Len(t, cat.ActiveLinksAt(at(0)), 2)
}
