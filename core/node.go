package core

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/encodeous/satmesh/state"
)

// Node is one satellite: a goroutine owning a router state, fed by its inbox
// and by closures dispatched from the clock and the harness.
type Node struct {
	Id      state.NodeId
	state   *state.State
	router  *NodeRouter
	inbox   *Inbox
	tracker *inflight
}

func NewNode(ctx context.Context, id state.NodeId, cfg state.SimCfg, logger *slog.Logger, transport Transport, events state.EventSink, tracker *inflight) *Node {
	ctx, cancel := context.WithCancelCause(ctx)
	s := &state.State{
		Env: &state.Env{
			DispatchChannel: make(chan func(s *state.State) error, 128),
			SimCfg:          cfg,
			Context:         ctx,
			Cancel:          cancel,
			Log:             logger.With("node", id),
		},
		RouterState: state.NewRouterState(id, cfg.Policy()),
	}
	return &Node{
		Id:      id,
		state:   s,
		router:  NewNodeRouter(s, transport, events),
		inbox:   NewInbox(cfg.InboxCapacity, cfg.OverflowPolicy),
		tracker: tracker,
	}
}

// Run is the node goroutine. It returns when the node's context is done.
func (n *Node) Run() error {
	return MainLoop(n.state, n.router, n.inbox.C, n.tracker)
}

func (n *Node) Stop(cause error) {
	n.state.Cancel(cause)
}

// call runs fun on the node goroutine. With flush set, output queued by fun is
// sent before call returns.
func (n *Node) call(ctx context.Context, flush bool, fun func(r *NodeRouter) any) (any, error) {
	return n.state.DispatchWaitContext(ctx, func(s *state.State) (any, error) {
		res := fun(n.router)
		if flush {
			n.router.settle()
		}
		return res, nil
	})
}

// Tick updates the neighbour table for virtual time t. Resulting updates stay
// queued until Flush.
func (n *Node) Tick(ctx context.Context, t time.Time, links []state.NeighbourLink) error {
	_, err := n.call(ctx, false, func(r *NodeRouter) any {
		r.Now = t
		r.HandleTick(links)
		return nil
	})
	return err
}

func (n *Node) Flush(ctx context.Context) error {
	_, err := n.call(ctx, true, func(r *NodeRouter) any {
		return nil
	})
	return err
}

// Advertise queues the full table for every neighbour if the advertise
// interval elapsed, or unconditionally with force. It reports whether it did.
func (n *Node) Advertise(ctx context.Context, force bool) (bool, error) {
	res, err := n.call(ctx, false, func(r *NodeRouter) any {
		if !force && !r.AdvertiseDue() {
			return false
		}
		r.Advertise()
		return true
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Inject hands a message originating here to the router.
func (n *Node) Inject(ctx context.Context, msg *state.DataMessage) error {
	_, err := n.call(ctx, true, func(r *NodeRouter) any {
		r.EnqueueMessage(msg)
		return nil
	})
	return err
}

// Snapshot returns a deep copy of the routing table.
func (n *Node) Snapshot(ctx context.Context) (state.RoutingTable, error) {
	res, err := n.call(ctx, false, func(r *NodeRouter) any {
		return r.Routes.Clone()
	})
	if err != nil {
		return nil, err
	}
	return res.(state.RoutingTable), nil
}

// Delivered returns the messages delivered to this node so far.
func (n *Node) Delivered(ctx context.Context) ([]*state.DataMessage, error) {
	res, err := n.call(ctx, false, func(r *NodeRouter) any {
		return slices.Clone(r.Local)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*state.DataMessage), nil
}

// NodeStatus is a point in time summary of a node.
type NodeStatus struct {
	Id         state.NodeId
	Version    uint64
	Routes     int
	Neighbours []state.NodeId
	Pending    int
	Queued     int
	Stats      state.TxStats
}

func (n *Node) Status(ctx context.Context) (NodeStatus, error) {
	res, err := n.call(ctx, false, func(r *NodeRouter) any {
		st := NodeStatus{
			Id:      r.Id,
			Version: r.Version,
			Routes:  len(r.Routes),
			Pending: len(r.Pending),
			Stats:   r.Stats,
		}
		for _, neigh := range r.Neighbours {
			st.Neighbours = append(st.Neighbours, neigh.Id)
			st.Queued += len(neigh.Outbox)
		}
		return st
	})
	if err != nil {
		return NodeStatus{}, err
	}
	return res.(NodeStatus), nil
}
