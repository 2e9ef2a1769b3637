package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile(`^[0-9A-Za-z._:/-]+$`)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

// NameValidator checks a satellite id.
func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid satellite id, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(%q) = %d > 100 is too long", s, len(s))
	}
	return nil
}

func SimConfigValidator(cfg *SimCfg) error {
	if cfg.Step <= 0 {
		return fmt.Errorf("step must be positive, got %s", cfg.Step.D())
	}
	if cfg.AdvertiseInterval <= 0 {
		return fmt.Errorf("advertise_interval must be positive, got %s", cfg.AdvertiseInterval.D())
	}
	if cfg.RouteExpiry < cfg.AdvertiseInterval {
		return fmt.Errorf("route_expiry (%s) must not be shorter than advertise_interval (%s)", cfg.RouteExpiry.D(), cfg.AdvertiseInterval.D())
	}
	if cfg.HopCeiling < 1 {
		return fmt.Errorf("hop_ceiling must be at least 1, got %d", cfg.HopCeiling)
	}
	if cfg.ConvergenceTicks < 1 {
		return fmt.Errorf("convergence_ticks must be at least 1, got %d", cfg.ConvergenceTicks)
	}
	if !slices.Contains([]CostModel{CostHops, CostQuality}, cfg.CostModel) {
		return fmt.Errorf("unknown cost_model %q", cfg.CostModel)
	}
	if !slices.Contains([]OverflowPolicy{DropOldest, RejectNew}, cfg.OverflowPolicy) {
		return fmt.Errorf("unknown overflow_policy %q", cfg.OverflowPolicy)
	}
	if cfg.RetryLimit < 0 {
		return fmt.Errorf("retry_limit must not be negative, got %d", cfg.RetryLimit)
	}
	if cfg.RetryBackoff <= 0 || cfg.PendingDeadline <= 0 {
		return fmt.Errorf("retry_backoff and pending_deadline must be positive")
	}
	for name, c := range map[string]int{
		"inbox_capacity":   cfg.InboxCapacity,
		"outbox_capacity":  cfg.OutboxCapacity,
		"pending_capacity": cfg.PendingCapacity,
		"local_capacity":   cfg.LocalCapacity,
	} {
		if c < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, c)
		}
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	return nil
}
