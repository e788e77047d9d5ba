package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/swarm/internal/config"
)

func newScheduleCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "schedule <simulation.yaml>",
		Short: "Print the spawn offsets of a simulation's injection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := config.LoadConfig(args[0])
			if err != nil {
				return usageError(err)
			}
			c, err := sim.Compile()
			if err != nil {
				return usageError(err)
			}

			steps := c.Profile.Steps()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tOFFSET\tSTEP")
			schedule := c.Profile.Schedule()
			for i, sp := range schedule {
				if limit > 0 && i >= limit {
					fmt.Fprintf(tw, "...\t\t%d more\n", len(schedule)-limit)
					break
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", sp.Index+1, sp.Offset, steps[sp.Step])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d users over %s\n", len(schedule), c.Profile.Duration())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most this many spawns (0 prints all)")
	return cmd
}
