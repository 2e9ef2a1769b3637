package state

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

type OverflowPolicy string

const (
	DropOldest OverflowPolicy = "drop-oldest"
	RejectNew  OverflowPolicy = "reject-new"
)

type CostModel string

const (
	// CostHops charges one unit per hop, link quality only breaks ties.
	CostHops CostModel = "hops"
	// CostQuality charges 1/quality per hop.
	CostQuality CostModel = "quality"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// SimCfg is the simulation-wide configuration shared by the clock and every node.
type SimCfg struct {
	Start             time.Time      `yaml:"start,omitempty"` // zero means the earliest link start
	Step              Duration       `yaml:"step"`
	AdvertiseInterval Duration       `yaml:"advertise_interval"`
	RouteExpiry       Duration       `yaml:"route_expiry"`
	HopCeiling        int            `yaml:"hop_ceiling"`
	ConvergenceTicks  int            `yaml:"convergence_ticks"`
	PoisonReverse     bool           `yaml:"poison_reverse"`
	CostModel         CostModel      `yaml:"cost_model"`
	LinkTypes         []string       `yaml:"link_types,omitempty"` // empty keeps every link type
	RetryLimit        int            `yaml:"retry_limit"`
	RetryBackoff      Duration       `yaml:"retry_backoff"`
	PendingDeadline   Duration       `yaml:"pending_deadline"`
	InboxCapacity     int            `yaml:"inbox_capacity"`
	OutboxCapacity    int            `yaml:"outbox_capacity"`
	PendingCapacity   int            `yaml:"pending_capacity"`
	LocalCapacity     int            `yaml:"local_capacity"`
	OverflowPolicy    OverflowPolicy `yaml:"overflow_policy"`
	LogPath           string         `yaml:"log_path,omitempty"`
}

func DefaultSimCfg() SimCfg {
	return SimCfg{
		Step:              Duration(StepInterval),
		AdvertiseInterval: Duration(AdvertiseInterval),
		RouteExpiry:       Duration(RouteExpiry),
		HopCeiling:        HopCeiling,
		ConvergenceTicks:  ConvergenceTicks,
		PoisonReverse:     true,
		CostModel:         CostHops,
		RetryLimit:        RetryLimit,
		RetryBackoff:      Duration(RetryBackoff),
		PendingDeadline:   Duration(PendingDeadline),
		InboxCapacity:     InboxCapacity,
		OutboxCapacity:    OutboxCapacity,
		PendingCapacity:   PendingCapacity,
		LocalCapacity:     LocalQueueCapacity,
		OverflowPolicy:    DropOldest,
	}
}

func (c SimCfg) Policy() RoutingPolicy {
	return RoutingPolicy{
		HopCeiling:    c.HopCeiling,
		CostModel:     c.CostModel,
		PoisonReverse: c.PoisonReverse,
		RouteExpiry:   c.RouteExpiry.D(),
	}
}

// ReadSimConfig reads a YAML file on top of the defaults, so a file only needs
// to name the values it changes.
func ReadSimConfig(path string) (*SimCfg, error) {
	cfg := DefaultSimCfg()
	if path == "" {
		return &cfg, nil
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}
