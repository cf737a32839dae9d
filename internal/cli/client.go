package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit"
)

// monitorClient fala com a API do monitor de um gateway em execução.
type monitorClient struct {
	base string
	http *http.Client
}

func newMonitorClient(base string) *monitorClient {
	return &monitorClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *monitorClient) Status(ctx context.Context) (ratelimit.StatusResponse, error) {
	var out ratelimit.StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

func (c *monitorClient) Reset(ctx context.Context, agent, endpoint string) error {
	path := "/v1/reset"
	if agent != "" {
		path = "/v1/agents/" + url.PathEscape(agent) + "/reset"
		if endpoint != "" {
			path += "?endpoint=" + url.QueryEscape(endpoint)
		}
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *monitorClient) SetLimits(ctx context.Context, agent string, req ratelimit.LimitsRequest) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPut, "/v1/agents/"+url.PathEscape(agent)+"/limits", req, &out)
	return out, err
}

func (c *monitorClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
