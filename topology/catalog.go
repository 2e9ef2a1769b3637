package topology

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/samber/lo"
)

// Record is one row of a link topology table before validation.
type Record struct {
	Source      string
	Destination string
	StartTime   time.Time
	EndTime     time.Time
	LinkType    string
	Quality     float64 // 0 means state.DefaultQuality
	Bandwidth   int
	Directed    bool
}

// Catalog is an immutable, time indexed set of links. It is safe for concurrent
// use once returned by Load.
type Catalog struct {
	links []state.Link // sorted by StartTime, then endpoints
	nodes []state.NodeId
	start time.Time
	end   time.Time
}

func toLink(r Record) (state.Link, error) {
	if err := state.NameValidator(r.Source); err != nil {
		return state.Link{}, err
	}
	if err := state.NameValidator(r.Destination); err != nil {
		return state.Link{}, err
	}
	if r.Source == r.Destination {
		return state.Link{}, fmt.Errorf("link from %s to itself", r.Source)
	}
	if !r.EndTime.After(r.StartTime) {
		return state.Link{}, fmt.Errorf("end %s is not after start %s",
			r.EndTime.Format(state.TopologyTimeLayout), r.StartTime.Format(state.TopologyTimeLayout))
	}
	if !(r.Quality >= 0 && r.Quality <= 1) {
		return state.Link{}, fmt.Errorf("quality %v outside [0, 1]", r.Quality)
	}
	if r.Bandwidth < 0 {
		return state.Link{}, fmt.Errorf("negative bandwidth %d", r.Bandwidth)
	}
	q := r.Quality
	if q == 0 {
		q = state.DefaultQuality
	}
	return state.Link{
		Source:      state.NodeId(r.Source),
		Destination: state.NodeId(r.Destination),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		LinkType:    r.LinkType,
		Quality:     q,
		Bandwidth:   r.Bandwidth,
		Directed:    r.Directed,
	}, nil
}

func compareLinks(a, b state.Link) int {
	return cmp.Or(
		a.StartTime.Compare(b.StartTime),
		strings.Compare(string(a.Source), string(b.Source)),
		strings.Compare(string(a.Destination), string(b.Destination)),
		a.EndTime.Compare(b.EndTime),
	)
}

// Load validates every record and builds a catalog. Any invalid record fails
// the whole load.
func Load(records []Record) (*Catalog, error) {
	links := make([]state.Link, 0, len(records))
	for i, r := range records {
		l, err := toLink(r)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d (%s -> %s): %v", state.ErrMalformedTopologyRecord, i, r.Source, r.Destination, err)
		}
		links = append(links, l)
	}
	return newCatalog(links), nil
}

func newCatalog(links []state.Link) *Catalog {
	slices.SortFunc(links, compareLinks)
	c := &Catalog{links: links}
	ids := make([]state.NodeId, 0, len(links)*2)
	for _, l := range links {
		ids = append(ids, l.Source, l.Destination)
		if c.start.IsZero() || l.StartTime.Before(c.start) {
			c.start = l.StartTime
		}
		if l.EndTime.After(c.end) {
			c.end = l.EndTime
		}
	}
	c.nodes = lo.Uniq(ids)
	slices.Sort(c.nodes)
	return c
}

// ActiveLinksAt returns the links with StartTime <= t < EndTime.
func (c *Catalog) ActiveLinksAt(t time.Time) []state.Link {
	// links starting after t can never be active
	n, _ := slices.BinarySearchFunc(c.links, t, func(l state.Link, t time.Time) int {
		if l.StartTime.After(t) {
			return 1
		}
		return -1
	})
	active := make([]state.Link, 0)
	for _, l := range c.links[:n] {
		if l.ActiveAt(t) {
			active = append(active, l)
		}
	}
	return active
}

// NeighboursAt returns the adjacency of every node with at least one active
// link at t. When several links join the same pair, the best quality link wins.
func (c *Catalog) NeighboursAt(t time.Time) map[state.NodeId][]state.NeighbourLink {
	best := make(map[state.Pair[state.NodeId, state.NodeId]]state.Link)
	add := func(from, to state.NodeId, l state.Link) {
		key := state.Pair[state.NodeId, state.NodeId]{V1: from, V2: to}
		if cur, ok := best[key]; !ok || l.Quality > cur.Quality {
			best[key] = l
		}
	}
	for _, l := range c.ActiveLinksAt(t) {
		add(l.Source, l.Destination, l)
		if !l.Directed {
			add(l.Destination, l.Source, l)
		}
	}
	adj := make(map[state.NodeId][]state.NeighbourLink)
	for key, l := range best {
		adj[key.V1] = append(adj[key.V1], state.NeighbourLink{Peer: key.V2, Link: l})
	}
	for _, ns := range adj {
		slices.SortFunc(ns, func(a, b state.NeighbourLink) int {
			return strings.Compare(string(a.Peer), string(b.Peer))
		})
	}
	return adj
}

// Connected reports whether a link carrying traffic from a to b is active at t.
func (c *Catalog) Connected(a, b state.NodeId, t time.Time) bool {
	for _, l := range c.ActiveLinksAt(t) {
		if l.Connects(a, b) {
			return true
		}
	}
	return false
}

// Nodes returns every satellite named by the catalog, sorted.
func (c *Catalog) Nodes() []state.NodeId {
	return slices.Clone(c.nodes)
}

func (c *Catalog) Links() []state.Link {
	return slices.Clone(c.links)
}

// Span returns the earliest link start and the latest link end.
func (c *Catalog) Span() (time.Time, time.Time) {
	return c.start, c.end
}

// Filter derives a catalog holding only the links keep accepts.
func (c *Catalog) Filter(keep func(state.Link) bool) *Catalog {
	return newCatalog(lo.Filter(c.links, func(l state.Link, _ int) bool {
		return keep(l)
	}))
}

// LinkTypes returns a filter accepting the given link types, or every link
// when types is empty.
func LinkTypes(types ...string) func(state.Link) bool {
	return func(l state.Link) bool {
		return len(types) == 0 || slices.Contains(types, l.LinkType)
	}
}
