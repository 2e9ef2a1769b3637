package cmd

import (
	"fmt"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/encodeous/satmesh/topology"
	"github.com/spf13/cobra"
)

var linksCmd = &cobra.Command{
	Use:   "links [time]",
	Short: "Lists the links active at a virtual time",
	Long: `Loads the topology table and prints the links active at the given time (02-Jan-2006 15:04:05).
Without a time, the topology span and its satellites are printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if topologyPath == "" {
			return fmt.Errorf("--topology is required")
		}
		catalog, err := topology.LoadFile(topologyPath)
		if err != nil {
			return err
		}
		if linkTypes, _ := cmd.Flags().GetStringSlice("link-type"); len(linkTypes) > 0 {
			catalog = catalog.Filter(topology.LinkTypes(linkTypes...))
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			start, end := catalog.Span()
			fmt.Fprintf(out, "%d links between %s and %s\n", len(catalog.Links()),
				start.Format(state.TopologyTimeLayout), end.Format(state.TopologyTimeLayout))
			for _, id := range catalog.Nodes() {
				fmt.Fprintf(out, " - %s\n", id)
			}
			return nil
		}
		t, err := time.Parse(state.TopologyTimeLayout, args[0])
		if err != nil {
			return err
		}
		active := catalog.ActiveLinksAt(t)
		fmt.Fprintf(out, "%d links active at %s\n", len(active), t.Format(state.TopologyTimeLayout))
		for _, l := range active {
			fmt.Fprintf(out, " - %s\n", l)
		}
		return nil
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.Flags().StringSlice("link-type", nil, "only list links of these types")
}
