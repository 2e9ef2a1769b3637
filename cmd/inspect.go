package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/encodeous/satmesh/core"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <addr> [node]",
	Aliases: []string{"i"},
	Short:   "Inspects the routers of a running simulation",
	Long:    `Prints the neighbours, adverts and routing table of a node, or of every node, from a simulation started with run --metrics <addr>.`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		node := ""
		if len(args) == 2 {
			node = args[1]
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		result, err := core.InspectGet(ctx, args[0], node)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
