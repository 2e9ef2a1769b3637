package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/encodeous/satmesh/core"
	"github.com/encodeous/satmesh/state"
	"github.com/spf13/cobra"
)

var (
	runUntil   string
	runInject  []string
	runOptions core.RunOptions
)

// parseInject parses SRC=DST into a message with the default ttl.
func parseInject(arg string) (*state.DataMessage, error) {
	src, dst, ok := strings.Cut(arg, "=")
	if !ok {
		return nil, fmt.Errorf("invalid message %q, expected SRC=DST", arg)
	}
	for _, id := range []string{src, dst} {
		if err := state.NameValidator(id); err != nil {
			return nil, err
		}
	}
	return &state.DataMessage{
		Source:      state.NodeId(src),
		Destination: state.NodeId(dst),
		Payload:     []byte(arg),
		TTL:         state.DefaultTTL,
	}, nil
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Loads the topology table and steps virtual time through it, logging every routing event.
With --max-steps the run stops as soon as the routing tables converge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if topologyPath == "" {
			return fmt.Errorf("--topology is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if linkTypes, _ := cmd.Flags().GetStringSlice("link-type"); len(linkTypes) > 0 {
			cfg.LinkTypes = linkTypes
		}
		if err := state.SimConfigValidator(cfg); err != nil {
			return err
		}
		if runUntil != "" {
			runOptions.Until, err = time.Parse(state.TopologyTimeLayout, runUntil)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
		}
		runOptions.Inject = runOptions.Inject[:0]
		for _, arg := range runInject {
			msg, err := parseInject(arg)
			if err != nil {
				return err
			}
			runOptions.Inject = append(runOptions.Inject, msg)
		}
		runOptions.TopologyPath = topologyPath

		logger, closer, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closer()
		cmd.SilenceUsage = true
		return core.Start(*cfg, runOptions, logger)
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runUntil, "until", "", "stop at this virtual time (02-Jan-2006 15:04:05), defaults to the end of the topology")
	runCmd.Flags().IntVar(&runOptions.MaxSteps, "max-steps", 0, "stop once converged, failing after this many steps")
	runCmd.Flags().StringVarP(&runOptions.MetricsAddr, "metrics", "m", "", "serve prometheus metrics and node inspection on this address")
	runCmd.Flags().BoolVarP(&runOptions.Wait, "wait", "w", false, "keep serving metrics after the run until interrupted")
	runCmd.Flags().StringSlice("link-type", nil, "only use links of these types")
	runCmd.Flags().StringArrayVarP(&runInject, "inject", "i", nil, "inject a message SRC=DST after the first step, may be repeated")
}
