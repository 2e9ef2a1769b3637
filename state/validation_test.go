package state

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("STARLINK-1007"))
	assert.NoError(t, NameValidator("sat_01.a"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("node name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("sat\\1"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func TestSimConfigValidator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *SimCfg)
		err    string
	}{
		{"zero step", func(c *SimCfg) { c.Step = 0 }, "step must be positive"},
		{"short expiry", func(c *SimCfg) { c.RouteExpiry = c.AdvertiseInterval - 1 }, "route_expiry"},
		{"hop ceiling", func(c *SimCfg) { c.HopCeiling = 0 }, "hop_ceiling"},
		{"convergence", func(c *SimCfg) { c.ConvergenceTicks = 0 }, "convergence_ticks"},
		{"cost model", func(c *SimCfg) { c.CostModel = "latency" }, "unknown cost_model"},
		{"overflow", func(c *SimCfg) { c.OverflowPolicy = "block" }, "unknown overflow_policy"},
		{"retry", func(c *SimCfg) { c.RetryLimit = -1 }, "retry_limit"},
		{"inbox", func(c *SimCfg) { c.InboxCapacity = 0 }, "inbox_capacity"},
		{"log path", func(c *SimCfg) { c.LogPath = "/does/not/exist/sim.log" }, "log_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimCfg()
			tt.mutate(&cfg)
			assert.ErrorContains(t, SimConfigValidator(&cfg), tt.err)
		})
	}
}

func TestSimConfigValidator_LogPath(t *testing.T) {
	cfg := DefaultSimCfg()
	cfg.LogPath = filepath.Join(t.TempDir(), "sim.log")
	assert.NoError(t, SimConfigValidator(&cfg))
}
