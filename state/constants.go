package state

import (
	"math"
	"time"
)

// INF is the cost of an unreachable destination.
var INF = math.Inf(1)

var (
	HopCeiling        = 16 // counting-to-infinity guard, as in RIP
	StepInterval      = time.Second * 10
	AdvertiseInterval = time.Second * 30
	RouteExpiry       = 3 * AdvertiseInterval
	ConvergenceTicks  = 3
	SeenUpdateTTL     = time.Second * 30
	SeenUpdateLimit   = uint64(4096)
	SafeMTU           = 1200

	// data plane
	RetryLimit         = 5
	RetryBackoff       = StepInterval
	PendingDeadline    = 10 * StepInterval
	InboxCapacity      = 1024
	OutboxCapacity     = 256
	PendingCapacity    = 256
	LocalQueueCapacity = 1024
	DefaultTTL         = HopCeiling
	DefaultQuality     = 1.0

	// TopologyTimeLayout is the timestamp layout used by link topology tables.
	TopologyTimeLayout = "02-Jan-2006 15:04:05"
)
