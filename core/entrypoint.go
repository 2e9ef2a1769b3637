package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/satmesh/perf"
	"github.com/encodeous/satmesh/state"
	"github.com/encodeous/satmesh/topology"
	"github.com/encodeous/tint"
	"github.com/prometheus/client_golang/prometheus"
	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the coloured stderr logger, fanned out to logPath when set.
// The returned closer releases the log file.
func NewLogger(w io.Writer, level slog.Level, prefix, logPath string) (*slog.Logger, func() error, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(w, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: prefix,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	closer := func() error { return nil }
	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// MainLoop is the node goroutine. Dispatched closures and inbound packets are
// handled one at a time, so they never race on the node state.
func MainLoop(s *state.State, r *NodeRouter, inbox <-chan state.Packet, tracker *inflight) error {
	s.Log.Debug("started main loop")
	for {
		select {
		case fun := <-s.DispatchChannel:
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > time.Millisecond*50 {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(s.DispatchChannel))
			}
		case pkt := <-inbox:
			r.HandlePacket(pkt)
			r.settle()
			tracker.done()
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	cause := context.Cause(s.Context)
	s.Log.Debug("stopped main loop", "reason", cause)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, ErrStopped) {
		return nil
	}
	return cause
}

// RunOptions configures a command line simulation run.
type RunOptions struct {
	TopologyPath string
	Until        time.Time // zero runs to the end of the catalog
	MaxSteps     int       // stop once converged, within this many steps; 0 disables
	MetricsAddr  string
	Inject       []*state.DataMessage
	// Wait keeps the metrics server up after the run until a shutdown signal
	Wait bool
}

// Start loads a topology, runs the simulation and logs every event until the
// run completes or a shutdown signal arrives.
func Start(cfg state.SimCfg, opts RunOptions, logger *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	catalog, err := topology.LoadFile(opts.TopologyPath)
	if err != nil {
		return err
	}
	if len(cfg.LinkTypes) > 0 {
		catalog = catalog.Filter(topology.LinkTypes(cfg.LinkTypes...))
	}
	start, end := catalog.Span()
	logger.Info("loaded topology", "satellites", len(catalog.Nodes()), "links", len(catalog.Links()),
		"start", start.Format(state.TopologyTimeLayout), "end", end.Format(state.TopologyTimeLayout))

	collector, err := perf.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	sim, err := NewSimulation(catalog, cfg, logger, collector, LogSink(logger))
	if err != nil {
		return err
	}
	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		mux.Handle("/debug/metrics", http.DefaultServeMux)
		mux.Handle("/inspect", sim)
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	sim.OnStep(func(rep StepReport) {
		collector.ObserveStep(rep.Elapsed, rep.Time)
	})
	if err := sim.Start(ctx); err != nil {
		return err
	}
	defer sim.Stop()

	logger.Info("simulation started. To gracefully exit, send SIGINT or Ctrl+C.")
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()

	if len(opts.Inject) > 0 {
		// the first step brings up the links the messages need
		if _, err := sim.Step(ctx); err != nil {
			return err
		}
		for _, msg := range opts.Inject {
			if err := sim.Inject(ctx, msg); err != nil {
				return fmt.Errorf("inject %s: %w", msg.Id, err)
			}
		}
	}

	if opts.MaxSteps > 0 {
		rep, err := sim.RunUntilConverged(ctx, opts.MaxSteps)
		if err != nil {
			return err
		}
		logger.Info("converged", "t", rep.Time.Format(state.TopologyTimeLayout), "steps", rep.Step)
	} else {
		until := opts.Until
		if until.IsZero() {
			until = end
		}
		if err := sim.Run(ctx, until); err != nil {
			return err
		}
	}

	for _, id := range sim.Nodes() {
		table, err := sim.Snapshot(ctx, id)
		if err != nil {
			return err
		}
		logger.Info("routing table", "node", id, "routes", len(table))
		for _, dst := range table.Destinations() {
			logger.Debug("route", "node", id, "dst", dst, "route", table[dst].String())
		}
	}
	if opts.Wait && opts.MetricsAddr != "" {
		logger.Info("run complete, serving until shutdown")
		<-ctx.Done()
	}
	return nil
}
