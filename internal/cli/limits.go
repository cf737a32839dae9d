package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"admission-gateway/middleware/ratelimit"
)

func newLimitsCmd(a *app) *cobra.Command {
	var (
		perSecond uint
		perMinute uint
		endpoint  string
	)

	cmd := &cobra.Command{
		Use:   "limits <agent>",
		Short: "Set an agent's per-second and/or per-minute limit on a running gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ratelimit.LimitsRequest{Endpoint: endpoint}
			if cmd.Flags().Changed("per-second") {
				req.PerSecond = &perSecond
			}
			if cmd.Flags().Changed("per-minute") {
				req.PerMinute = &perMinute
			}
			if req.PerSecond == nil && req.PerMinute == nil {
				return errors.New("--per-second or --per-minute is required")
			}

			profile, err := newMonitorClient(a.cfg.Monitor.URL).SetLimits(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	}

	cmd.Flags().UintVar(&perSecond, "per-second", 0, "Max requests per second")
	cmd.Flags().UintVar(&perMinute, "per-minute", 0, "Max requests per minute")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Apply to the agent's bucket for this endpoint")
	return cmd
}
