package core

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/jellydator/ttlcache/v3"
)

type updateKey = state.Pair[state.NodeId, uint32]

// NodeRouter is the per-satellite router. It implements Router on top of the
// node's state and is only ever used from the node goroutine.
type NodeRouter struct {
	*state.State
	IO map[state.NodeId]*IOPending
	// seen holds the (sender, seqno) of recently processed frames
	seen      *ttlcache.Cache[updateKey, struct{}]
	Pending   []*pendingMessage
	Local     []*state.DataMessage
	Stats     state.TxStats
	transport Transport
	events    state.EventSink

	settledVersion uint64
	lastAdvertised time.Time
}

type IOPending struct {
	Updates map[state.NodeId]state.UpdateEntry
}

func NewNodeRouter(s *state.State, transport Transport, events state.EventSink) *NodeRouter {
	s.Log.Debug("init router")
	return &NodeRouter{
		State: s,
		IO:    make(map[state.NodeId]*IOPending),
		seen: ttlcache.New[updateKey, struct{}](
			ttlcache.WithTTL[updateKey, struct{}](state.SeenUpdateTTL),
			ttlcache.WithCapacity[updateKey, struct{}](state.SeenUpdateLimit),
			ttlcache.WithDisableTouchOnHit[updateKey, struct{}](),
		),
		Pending:   make([]*pendingMessage, 0),
		Local:     make([]*state.DataMessage, 0),
		transport: transport,
		events:    events,
	}
}

func (r *NodeRouter) GetNeighIO(neigh state.NodeId) *IOPending {
	nio, ok := r.IO[neigh]
	if !ok {
		nio = &IOPending{
			Updates: make(map[state.NodeId]state.UpdateEntry),
		}
		r.IO[neigh] = nio
	}
	return nio
}

func (r *NodeRouter) SendRouteUpdate(neigh state.NodeId, entry state.UpdateEntry) {
	nio := r.GetNeighIO(neigh)
	nio.Updates[entry.Destination] = entry
}

func (r *NodeRouter) Emit(ev state.Event) {
	r.events.Emit(ev)
}

func (r *NodeRouter) Log(event RouterEvent, desc string, args ...any) {
	if event >= InconsistentState {
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

// HandleTick brings the node to virtual time t with the given active links.
// Output is queued, not sent; see settle.
func (r *NodeRouter) HandleTick(links []state.NeighbourLink) {
	added, kept, removed := DiffNeighbours(r.RouterState, links)
	for _, id := range removed {
		r.neighbourDown(id)
	}
	for _, l := range kept {
		HandleNeighbourRefresh(r.RouterState, r, r.GetNeighbour(l.Peer), l)
	}
	for _, l := range added {
		HandleNeighbourUp(r.RouterState, r, l)
	}
	ExpireRoutes(r.RouterState, r)
	r.seen.DeleteExpired()
	r.retryPending(true)
}

func (r *NodeRouter) neighbourDown(id state.NodeId) {
	stranded := HandleNeighbourDown(r.RouterState, r, id)
	delete(r.IO, id)
	for _, msg := range stranded {
		r.Env.Log.Debug("re-routing message", "msg", msg.Id, "neigh", id, "err", state.ErrLinkInactive)
		// the hop was never taken
		msg.TTL++
		r.route(msg)
	}
}

// Advertise queues the full table for every neighbour.
func (r *NodeRouter) Advertise() {
	r.lastAdvertised = r.Now
	FullTableUpdate(r.RouterState, r)
}

// AdvertiseDue reports whether the periodic advertisement is due at Now.
func (r *NodeRouter) AdvertiseDue() bool {
	return r.lastAdvertised.IsZero() || r.Now.Sub(r.lastAdvertised) >= r.AdvertiseInterval.D()
}

// HandlePacket processes one packet taken from the inbox.
func (r *NodeRouter) HandlePacket(pkt state.Packet) {
	if pkt.Data != nil {
		r.Stats.Received++
		r.route(pkt.Data)
		return
	}
	u, err := state.DecodeUpdate(pkt.Frame)
	if err != nil {
		r.Env.Log.Warn("received malformed routing update", "from", pkt.From, "err", err)
		return
	}
	if !checkNeigh(r.State, u.Sender) {
		return
	}
	key := updateKey{V1: u.Sender, V2: u.Seqno}
	if r.seen.Has(key) {
		r.Env.Log.Debug("duplicate routing update ignored", "from", u.Sender, "seqno", u.Seqno)
		return
	}
	r.seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
	HandleRouteUpdate(r.RouterState, r, u)
}

func checkNeigh(s *state.State, id state.NodeId) bool {
	if s.GetNeighbour(id) != nil {
		return true
	}
	s.Log.Debug("received packet from inactive neighbour", "from", id)
	return false
}

// settle runs after every handler: held messages get another chance when the
// table changed, then queued output is sent.
func (r *NodeRouter) settle() {
	for {
		if r.Version != r.settledVersion {
			r.settledVersion = r.Version
			r.retryPending(false)
		}
		down := r.flushIO()
		if len(down) == 0 && r.Version == r.settledVersion {
			return
		}
		for _, id := range down {
			r.neighbourDown(id)
		}
	}
}

// flushIO sends the queued routing updates and drains the outboxes within
// their bandwidth budget. It returns the neighbours found unreachable.
func (r *NodeRouter) flushIO() []state.NodeId {
	down := make([]state.NodeId, 0)
	for _, neigh := range r.Neighbours {
		if err := r.flushUpdates(neigh); err != nil {
			if errors.Is(err, state.ErrLinkInactive) {
				down = append(down, neigh.Id)
				continue
			}
			r.Env.Log.Debug("failed to send routing update", "neigh", neigh.Id, "err", err)
		}
		if err := r.drainOutbox(neigh); err != nil {
			down = append(down, neigh.Id)
		}
	}
	for id := range r.IO {
		if r.GetNeighbour(id) == nil {
			delete(r.IO, id)
		}
	}
	return down
}

func (r *NodeRouter) flushUpdates(neigh *state.Neighbour) error {
	nio, ok := r.IO[neigh.Id]
	if !ok || len(nio.Updates) == 0 {
		return nil
	}
	dsts := make([]state.NodeId, 0, len(nio.Updates))
	for dst := range nio.Updates {
		dsts = append(dsts, dst)
	}
	slices.Sort(dsts)

	for len(dsts) > 0 {
		// we can coalesce entries, but a frame must stay within SafeMTU
		r.Seqno++
		u := state.RoutingUpdate{Sender: r.Id, Seqno: r.Seqno}
		tLength := state.HeaderSize(u.Sender, u.Seqno)
		n := 0
		for _, dst := range dsts {
			e := nio.Updates[dst]
			size := state.EntrySize(e)
			if n > 0 && tLength+size >= state.SafeMTU {
				break
			}
			u.Entries = append(u.Entries, e)
			tLength += size
			n++
		}
		err := r.transport.Send(r.Context, neigh.Id, state.Packet{From: r.Id, Frame: state.EncodeUpdate(u)})
		if err != nil {
			return err
		}
		for _, dst := range dsts[:n] {
			delete(nio.Updates, dst)
		}
		dsts = dsts[n:]
	}
	return nil
}
