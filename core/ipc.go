package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/satmesh/state"
)

// InspectGet fetches the inspection dump of node from a simulation serving
// metrics at addr. An empty node dumps every node.
func InspectGet(ctx context.Context, addr, node string) (string, error) {
	u := url.URL{Scheme: "http", Host: addr, Path: "/inspect"}
	if node != "" {
		u.RawQuery = url.Values{"node": {node}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inspect %s: %s: %s", addr, resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// ServeHTTP writes the inspection dump of the node named by the node query
// parameter, or of every node.
func (s *Simulation) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ids := s.Nodes()
	if node := req.URL.Query().Get("node"); node != "" {
		ids = []state.NodeId{state.NodeId(node)}
	}
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()
	sb := strings.Builder{}
	for _, id := range ids {
		n, err := s.node(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		dump, err := n.Inspect(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		sb.WriteString(dump)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, sb.String())
}

// Inspect renders the node's neighbours, their adverts and the routing table.
func (n *Node) Inspect(ctx context.Context) (string, error) {
	res, err := n.call(ctx, false, func(r *NodeRouter) any {
		return inspectRouter(r)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func inspectRouter(r *NodeRouter) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Node %s at %s (version %d, seqno %d)\n",
		r.Id, r.Now.Format(state.TopologyTimeLayout), r.Version, r.Seqno))

	sb.WriteString("Neighbours:\n")
	if len(r.Neighbours) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, n := range r.Neighbours {
		sb.WriteString(fmt.Sprintf(" - %s\n", n.Id))
		sb.WriteString(fmt.Sprintf("   Link: %s\n", n.Link))
		sb.WriteString(fmt.Sprintf("   Cost: %s, Budget: %d, Queued: %d\n", state.FormatCost(LinkCost(r.RouterState, n)), n.Budget, len(n.Outbox)))
		sb.WriteString("   Adverts:\n")
		rt := make([]string, 0)
		if len(n.Adverts) == 0 {
			rt = append(rt, "    (none)")
		}
		for dst, adv := range n.Adverts {
			rt = append(rt, fmt.Sprintf("    - %s: cost=%s, hops=%d", dst, state.FormatCost(adv.Cost), adv.HopCount))
		}
		slices.Sort(rt)
		sb.WriteString(strings.Join(rt, "\n") + "\n")
	}

	sb.WriteString("Routes:\n")
	for _, dst := range r.Routes.Destinations() {
		sb.WriteString(fmt.Sprintf(" - %s via %s\n", dst, r.Routes[dst]))
	}
	if len(r.Pending) > 0 {
		sb.WriteString(fmt.Sprintf("Pending: %d\n", len(r.Pending)))
	}
	sb.WriteString(fmt.Sprintf("Messages: %s\n", r.Stats))
	sb.WriteString("\n")
	return sb.String()
}
