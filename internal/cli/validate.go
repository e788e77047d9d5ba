package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/swarm/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <simulation.yaml>",
		Short: "Check a simulation file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(args[0])
			if err != nil {
				return usageError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Simulation %q is valid\n", c.Name)
			fmt.Fprintf(out, "  Scenario:   %s\n", c.Graph.Name())
			if names := c.Graph.ChainNames(); len(names) > 0 {
				fmt.Fprintf(out, "  Chains:     %s\n", strings.Join(names, ", "))
			}
			fmt.Fprintf(out, "  Base URL:   %s\n", c.Protocol.BaseURL())
			fmt.Fprintf(out, "  Policy:     %s\n", c.Policy)
			fmt.Fprintf(out, "  Users:      %d over %s\n", c.Profile.Users(), c.Profile.Duration())
			steps := make([]string, 0, len(c.Profile.Steps()))
			for _, s := range c.Profile.Steps() {
				steps = append(steps, s.String())
			}
			fmt.Fprintf(out, "  Injection:  %s\n", strings.Join(steps, ", "))
			if len(c.Assertions) > 0 {
				fmt.Fprintf(out, "  Assertions: %d\n", len(c.Assertions))
			}
			return nil
		},
	}
}
