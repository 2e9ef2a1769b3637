package core

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/encodeous/satmesh/topology"
)

// StepReport describes one clock step.
type StepReport struct {
	Step            int
	Time            time.Time
	TopologyChanged bool
	// TableChanges is the number of nodes whose routing table changed
	TableChanges int
	Advertised   int
	StableSteps  int
	Converged    bool
	Elapsed      time.Duration
}

// Clock advances virtual time in fixed steps and drives every node through
// each step.
type Clock struct {
	catalog   *topology.Catalog
	nodes     []*Node // ascending id order
	transport *memTransport
	tracker   *inflight
	step      time.Duration
	needed    int
	log       *slog.Logger

	mu        sync.RWMutex
	now       time.Time
	next      time.Time
	steps     int
	stable    int
	lastAdj   map[state.NodeId][]state.NeighbourLink
	versions  map[state.NodeId]uint64
	listeners []func(StepReport)
}

func NewClock(catalog *topology.Catalog, nodes []*Node, transport *memTransport, tracker *inflight, cfg state.SimCfg, log *slog.Logger) *Clock {
	start := cfg.Start
	if start.IsZero() {
		start, _ = catalog.Span()
	}
	nodes = slices.Clone(nodes)
	slices.SortFunc(nodes, func(a, b *Node) int {
		return strings.Compare(string(a.Id), string(b.Id))
	})
	return &Clock{
		catalog:   catalog,
		nodes:     nodes,
		transport: transport,
		tracker:   tracker,
		step:      cfg.Step.D(),
		needed:    cfg.ConvergenceTicks,
		log:       log,
		next:      start,
		versions:  make(map[state.NodeId]uint64),
	}
}

// Now is the virtual time of the last step, zero before the first one.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Next is the virtual time the next step will run at.
func (c *Clock) Next() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.next
}

// AddListener registers fn to be called after every step.
func (c *Clock) AddListener(fn func(StepReport)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Step runs one tick: every node learns its active links in ascending id
// order and advertises when due, then all output is flushed and the clock
// waits until every packet sent during the step was handled.
func (c *Clock) Step(ctx context.Context) (StepReport, error) {
	begin := time.Now()
	if err := c.tracker.wait(ctx); err != nil {
		return StepReport{}, err
	}

	c.mu.Lock()
	t := c.next
	c.now = t
	c.next = t.Add(c.step)
	c.steps++
	rep := StepReport{Step: c.steps, Time: t}
	c.mu.Unlock()

	c.transport.SetNow(t)
	adj := c.catalog.NeighboursAt(t)
	rep.TopologyChanged = c.lastAdj == nil || !maps.EqualFunc(adj, c.lastAdj, sameLinks)
	c.lastAdj = adj

	for _, n := range c.nodes {
		if err := n.Tick(ctx, t, adj[n.Id]); err != nil {
			return rep, err
		}
		ok, err := n.Advertise(ctx, false)
		if err != nil {
			return rep, err
		}
		if ok {
			rep.Advertised++
		}
	}
	for _, n := range c.nodes {
		if err := n.Flush(ctx); err != nil {
			return rep, err
		}
	}
	if err := c.tracker.wait(ctx); err != nil {
		return rep, err
	}

	for _, n := range c.nodes {
		st, err := n.Status(ctx)
		if err != nil {
			return rep, err
		}
		if c.versions[n.Id] != st.Version {
			rep.TableChanges++
		}
		c.versions[n.Id] = st.Version
	}

	c.mu.Lock()
	if rep.TableChanges == 0 && !rep.TopologyChanged {
		c.stable++
	} else {
		c.stable = 0
	}
	rep.StableSteps = c.stable
	rep.Converged = c.stable >= c.needed
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	rep.Elapsed = time.Since(begin)
	c.log.Debug("step", "t", t.Format(state.TopologyTimeLayout), "changes", rep.TableChanges,
		"topology_changed", rep.TopologyChanged, "stable", rep.StableSteps, "elapsed", rep.Elapsed)
	for _, fn := range listeners {
		fn(rep)
	}
	return rep, nil
}

func sameLinks(a, b []state.NeighbourLink) bool {
	return slices.EqualFunc(a, b, func(x, y state.NeighbourLink) bool {
		return x.Peer == y.Peer && x.Link.Quality == y.Link.Quality && x.Link.Bandwidth == y.Link.Bandwidth
	})
}
