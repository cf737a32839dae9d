package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(a *app) *cobra.Command {
	var (
		all      bool
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "reset [agent]",
		Short: "Clear sends, limits and cooldown of one agent (or all with --all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := ""
			if len(args) == 1 {
				agent = args[0]
			}
			if agent == "" && !all {
				return errors.New("an agent or --all is required")
			}
			if agent != "" && all {
				return errors.New("agent and --all are mutually exclusive")
			}

			if err := newMonitorClient(a.cfg.Monitor.URL).Reset(cmd.Context(), agent, endpoint); err != nil {
				return err
			}
			if all {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "all agents reset")
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "agent %s reset\n", agent)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reset every agent")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Reset only the agent's bucket for this endpoint")
	return cmd
}
