package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

type simulateOptions struct {
	target   string
	agents   int
	requests int
	offered  float64
	wait     time.Duration
}

// agentResult conta o que aconteceu com as requisições de um agente simulado.
type agentResult struct {
	Agent       string
	Sent        int
	OK          int
	Rejected    int
	TimedOut    int
	Upstream429 int
	Failed      int
}

func newSimulateCmd(a *app) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run N local agents through admission control against an upstream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.agents <= 0 || opts.requests <= 0 || opts.offered <= 0 {
				return errors.New("--agents, --requests and --offered-rps must be > 0")
			}
			if opts.target == "" {
				opts.target = a.cfg.Gateway.Upstream
			}

			gate, _ := buildGate(a.cfg.Limits, a.log.WithComponent("gate"))
			results := runSimulation(cmd.Context(), gate, http.DefaultTransport, opts)

			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderSimulation(results))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.target, "target", "", "URL to call (default gateway.upstream)")
	cmd.Flags().IntVar(&opts.agents, "agents", 3, "Number of agents")
	cmd.Flags().IntVar(&opts.requests, "requests", 50, "Requests per agent")
	cmd.Flags().Float64Var(&opts.offered, "offered-rps", 20, "Rate each agent tries to send at")
	cmd.Flags().DurationVar(&opts.wait, "wait", 0, "Wait for capacity up to this long (0 = fail fast)")
	return cmd
}

// runSimulation dispara os agentes em paralelo; cada um oferece carga a
// offered-rps e passa pelo Transport do gate compartilhado.
func runSimulation(ctx context.Context, gate *application.Gate, base http.RoundTripper, opts simulateOptions) []agentResult {
	results := make([]agentResult, opts.agents)

	var wg sync.WaitGroup
	for i := range opts.agents {
		agent := fmt.Sprintf("agent-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = simulateAgent(ctx, gate, base, agent, opts)
		}()
	}
	wg.Wait()
	return results
}

func simulateAgent(ctx context.Context, gate *application.Gate, base http.RoundTripper, agent string, opts simulateOptions) agentResult {
	res := agentResult{Agent: agent}
	client := &http.Client{Transport: &ratelimit.Transport{
		Base:  base,
		Gate:  gate,
		KeyFn: ratelimit.StaticKey(domain.AgentKey(agent)),
		Wait:  opts.wait,
	}}
	pacer := rate.NewLimiter(rate.Limit(opts.offered), 1)

	for range opts.requests {
		if err := pacer.Wait(ctx); err != nil {
			break
		}
		res.Sent++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.target, nil)
		if err != nil {
			res.Failed++
			continue
		}
		req.Header.Set(ratelimit.DefaultAgentHeader, agent)

		resp, err := client.Do(req)
		switch {
		case errors.Is(err, ratelimit.ErrRejected):
			res.Rejected++
		case errors.Is(err, domain.ErrCapacityTimeout):
			res.TimedOut++
		case err != nil:
			res.Failed++
		default:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				res.Upstream429++
			} else {
				res.OK++
			}
		}
	}
	return res
}

func renderSimulation(results []agentResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Agent", "Sent", "OK", "Rejected", "Timed out", "Upstream 429", "Failed"})

	var total agentResult
	for _, r := range results {
		t.AppendRow(table.Row{r.Agent, r.Sent, r.OK, r.Rejected, r.TimedOut, r.Upstream429, r.Failed})
		total.Sent += r.Sent
		total.OK += r.OK
		total.Rejected += r.Rejected
		total.TimedOut += r.TimedOut
		total.Upstream429 += r.Upstream429
		total.Failed += r.Failed
	}
	t.AppendFooter(table.Row{"total", total.Sent, total.OK, total.Rejected, total.TimedOut, total.Upstream429, total.Failed})
	return t.Render()
}
