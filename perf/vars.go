package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency       = metric.NewHistogram("1m1s")
	FrameSize             = metric.NewHistogram("10s1s")
	StepLatency           = metric.NewHistogram("1m1s")
	FramesPerSecond       = metric.NewCounter("10s1s")
	FrameBytesPerSecond   = metric.NewCounter("10s1s")
	MessagesPerSecond     = metric.NewCounter("10s1s")
	DroppedPerSecond      = metric.NewCounter("10s1s")
	RouteChangesPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("satmesh:FrameSize", FrameSize)
	expvar.Publish("satmesh:StepLatency (ms)", StepLatency)

	expvar.Publish("satmesh:Frames/s", FramesPerSecond)
	expvar.Publish("satmesh:FrameBytes/s", FrameBytesPerSecond)
	expvar.Publish("satmesh:Messages/s", MessagesPerSecond)
	expvar.Publish("satmesh:Dropped/s", DroppedPerSecond)
	expvar.Publish("satmesh:RouteChanges/s", RouteChangesPerSecond)
	expvar.Publish("satmesh:DispatchLatency (µs)", DispatchLatency)
}
