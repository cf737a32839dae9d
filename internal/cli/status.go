package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"admission-gateway/middleware/ratelimit"
)

func newStatusCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-agent usage, remaining capacity and cooldowns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported output format: %s", format)
			}

			st, err := newMonitorClient(a.cfg.Monitor.URL).Status(cmd.Context())
			if err != nil {
				return err
			}

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
			return err
		},
	}

	cmd.Flags().StringVar(&format, "output-format", "table", "Output format: table|json")
	return cmd
}

func renderStatus(st ratelimit.StatusResponse) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Agent", "Endpoint", "Limit/s", "Limit/m", "Sent 1s", "Sent 60s", "Left/s", "Left/m", "Cooldown"})

	cooling := 0
	for _, ag := range st.Agents {
		cooldown := "-"
		if ag.CooldownUntil != nil {
			cooling++
			if left := ag.CooldownUntil.Sub(st.GeneratedAt); left > 0 {
				cooldown = left.Round(100 * time.Millisecond).String()
			}
		}
		endpoint := ag.Endpoint
		if endpoint == "" {
			endpoint = "*"
		}
		t.AppendRow(table.Row{
			ag.Agent,
			endpoint,
			ag.Limits.MaxPerSecond,
			ag.Limits.MaxPerMinute,
			ag.SentLastSec,
			ag.SentLastMin,
			ag.Remaining.RemainingPerSecond,
			ag.Remaining.RemainingPerMinute,
			cooldown,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "cooling", cooling})
	return t.Render()
}

func writeJSON(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}
