package core

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	ctx := testCtx(t)
	sim, _ := startSim(t, testSimCfg(), link("1", "2", 0, 100), link("2", "3", 0, 100))
	_, err := sim.Step(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(sim)
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	dump, err := InspectGet(ctx, addr, "2")
	require.NoError(t, err)
	assert.Contains(t, dump, "Node 2")
	assert.Contains(t, dump, " - 1\n")
	assert.Contains(t, dump, " - 3 via (nh: 3, hops: 1, cost: 1)")
	assert.Contains(t, dump, "Messages: sent 0, accepted 0, received 0, success 1.00")
	assert.NotContains(t, dump, "Node 1")

	all, err := InspectGet(ctx, addr, "")
	require.NoError(t, err)
	for _, id := range []string{"Node 1", "Node 2", "Node 3"} {
		assert.Contains(t, all, id)
	}

	_, err = InspectGet(ctx, addr, "9")
	assert.ErrorContains(t, err, "404")
}
