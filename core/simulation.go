package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/encodeous/satmesh/topology"
	"golang.org/x/sync/errgroup"
)

var (
	ErrStopped      = errors.New("simulation stopped")
	ErrNotStarted   = errors.New("simulation not started")
	ErrNotConverged = errors.New("simulation did not converge")
)

// Simulation wires a catalog, a clock and one node per satellite together.
type Simulation struct {
	catalog   *topology.Catalog
	cfg       state.SimCfg
	log       *slog.Logger
	bus       *EventBus
	tracker   *inflight
	transport *memTransport
	ids       []state.NodeId

	mu        sync.Mutex
	nodes     map[state.NodeId]*Node
	clock     *Clock
	group     *errgroup.Group
	cancel    context.CancelCauseFunc
	started   bool
	stopped   bool
	listeners []func(StepReport)
	stopErr   error

	msgSeq atomic.Uint64
}

// NewSimulation validates cfg and prepares a simulation over catalog. Every
// event is handed to sinks synchronously, from the emitting node's goroutine.
func NewSimulation(catalog *topology.Catalog, cfg state.SimCfg, logger *slog.Logger, sinks ...state.EventSink) (*Simulation, error) {
	if err := state.SimConfigValidator(&cfg); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	if len(cfg.LinkTypes) > 0 {
		catalog = catalog.Filter(topology.LinkTypes(cfg.LinkTypes...))
	}
	bus := NewEventBus(1024, sinks...)
	tracker := newInflight()
	return &Simulation{
		catalog:   catalog,
		cfg:       cfg,
		log:       logger,
		bus:       bus,
		tracker:   tracker,
		transport: newMemTransport(catalog, tracker, bus, logger),
		ids:       catalog.Nodes(),
		nodes:     make(map[state.NodeId]*Node),
	}, nil
}

// Start spawns one goroutine per satellite. A node failing stops them all.
func (s *Simulation) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("simulation already started")
	}
	ctx, cancel := context.WithCancelCause(ctx)
	g, gctx := errgroup.WithContext(ctx)
	nodes := make([]*Node, 0, len(s.ids))
	for _, id := range s.ids {
		n := NewNode(gctx, id, s.cfg, s.log, s.transport, s.bus, s.tracker)
		s.transport.register(id, n.inbox)
		s.nodes[id] = n
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		g.Go(n.Run)
	}
	s.clock = NewClock(s.catalog, nodes, s.transport, s.tracker, s.cfg, s.log)
	s.clock.AddListener(s.notify)
	s.group = g
	s.cancel = cancel
	s.started = true
	s.log.Info("started simulation", "satellites", len(nodes), "start", s.clock.Next().Format(state.TopologyTimeLayout))
	return nil
}

func (s *Simulation) notify(rep StepReport) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(rep)
	}
}

// OnStep registers fn to be called after every clock step.
func (s *Simulation) OnStep(fn func(StepReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Simulation) running() (*Clock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if s.stopped {
		return nil, ErrStopped
	}
	return s.clock, nil
}

func (s *Simulation) node(id state.NodeId) (*Node, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownNode, id)
	}
	return n, nil
}

// Step advances virtual time by one step.
func (s *Simulation) Step(ctx context.Context) (StepReport, error) {
	clock, err := s.running()
	if err != nil {
		return StepReport{}, err
	}
	return clock.Step(ctx)
}

// Run steps until the next step would pass until.
func (s *Simulation) Run(ctx context.Context, until time.Time) error {
	clock, err := s.running()
	if err != nil {
		return err
	}
	for !clock.Next().After(until) {
		if _, err := clock.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunUntilConverged steps until the tables stayed unchanged for the configured
// number of steps, giving up after maxSteps.
func (s *Simulation) RunUntilConverged(ctx context.Context, maxSteps int) (StepReport, error) {
	clock, err := s.running()
	if err != nil {
		return StepReport{}, err
	}
	var rep StepReport
	for range maxSteps {
		rep, err = clock.Step(ctx)
		if err != nil {
			return rep, err
		}
		if rep.Converged {
			return rep, nil
		}
	}
	return rep, fmt.Errorf("%w after %d steps", ErrNotConverged, maxSteps)
}

// Settle waits until every packet in flight has been handled.
func (s *Simulation) Settle(ctx context.Context) error {
	if _, err := s.running(); err != nil {
		return err
	}
	return s.tracker.wait(ctx)
}

// NewMessage builds a message with the default hop budget.
func (s *Simulation) NewMessage(src, dst state.NodeId, payload []byte) *state.DataMessage {
	return &state.DataMessage{
		Id:          fmt.Sprintf("%s-%d", src, s.msgSeq.Add(1)),
		Source:      src,
		Destination: dst,
		Payload:     payload,
		TTL:         state.DefaultTTL,
	}
}

// Inject hands msg to its source node and waits until it was forwarded as far
// as the current tables allow. The message must not be used by the caller
// afterwards.
func (s *Simulation) Inject(ctx context.Context, msg *state.DataMessage) error {
	n, err := s.node(msg.Source)
	if err != nil {
		return err
	}
	if msg.Id == "" {
		msg.Id = fmt.Sprintf("%s-%d", msg.Source, s.msgSeq.Add(1))
	}
	if err := n.Inject(ctx, msg); err != nil {
		return err
	}
	return s.tracker.wait(ctx)
}

// Tick delivers a tick with an explicit neighbour list to a single node, then
// flushes its output. Sends are still checked against the catalog at t.
func (s *Simulation) Tick(ctx context.Context, id state.NodeId, t time.Time, neighbours []state.NeighbourLink) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	s.transport.SetNow(t)
	if err := n.Tick(ctx, t, neighbours); err != nil {
		return err
	}
	if err := n.Flush(ctx); err != nil {
		return err
	}
	return s.tracker.wait(ctx)
}

// Snapshot returns a copy of a node's routing table.
func (s *Simulation) Snapshot(ctx context.Context, id state.NodeId) (state.RoutingTable, error) {
	n, err := s.node(id)
	if err != nil {
		return nil, err
	}
	return n.Snapshot(ctx)
}

// Delivered returns the messages delivered to a node.
func (s *Simulation) Delivered(ctx context.Context, id state.NodeId) ([]*state.DataMessage, error) {
	n, err := s.node(id)
	if err != nil {
		return nil, err
	}
	return n.Delivered(ctx)
}

func (s *Simulation) Status(ctx context.Context, id state.NodeId) (NodeStatus, error) {
	n, err := s.node(id)
	if err != nil {
		return NodeStatus{}, err
	}
	return n.Status(ctx)
}

// Subscribe returns a channel receiving every event as a state.Event. Slow
// subscribers lose events.
func (s *Simulation) Subscribe() <-chan any {
	return s.bus.Subscribe(1024)
}

func (s *Simulation) Unsubscribe(ch <-chan any) {
	s.bus.Unsubscribe(ch)
}

func (s *Simulation) Nodes() []state.NodeId {
	return s.ids
}

func (s *Simulation) Catalog() *topology.Catalog {
	return s.catalog
}

// Now is the virtual time of the last step.
func (s *Simulation) Now() time.Time {
	s.mu.Lock()
	clock := s.clock
	s.mu.Unlock()
	if clock == nil {
		return time.Time{}
	}
	return clock.Now()
}

// Stop cancels every node, waits for their goroutines and closes the event
// bus. It returns the first node failure, if any.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		err := s.stopErr
		s.mu.Unlock()
		return err
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel(ErrStopped)
	err := s.group.Wait()
	if cerr := s.bus.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.log.Info("stopped simulation")

	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
	return err
}
