package cmd

import (
	"log/slog"
	"os"

	"github.com/encodeous/satmesh/core"
	"github.com/encodeous/satmesh/state"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	topologyPath string
	logPath      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "satmesh",
	Short: "Satellite mesh routing simulator",
	Long: `satmesh simulates distance-vector routing across a satellite constellation.
Every satellite runs as its own router, exchanging updates only over the inter-satellite links active at the current virtual time.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the simulation config and applies the persistent flags.
func loadConfig() (*state.SimCfg, error) {
	cfg, err := state.ReadSimConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *state.SimCfg) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if ok, _ := cmd.Flags().GetBool("verbose"); ok {
		level = slog.LevelDebug
	}
	return core.NewLogger(os.Stderr, level, "", cfg.LogPath)
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "simulation config (yaml), defaults are used when unset")
	rootCmd.PersistentFlags().StringVarP(&topologyPath, "topology", "t", "", "link topology table (csv)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
}
