package backend

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

	"github.com/conveyordev/conveyor/pkg/cverr"
)

const defaultTimeout = 30 * time.Second

// ClientConfig holds everything the HTTP backend needs. Endpoint and
// credentials are passed explicitly so the client stays testable; nothing
// is read from process-wide state here.
type ClientConfig struct {
	BaseURL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey   string
	WorkPool string
	Timeout  time.Duration
}

// Client talks to the scheduler's REST API. It implements Backend,
// StatusBatcher and LimitAdmin.
type Client struct {
	baseURL  string
	apiKey   string
	workPool string
	httpc    *http.Client
}

// NewClient validates the config and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, cverr.Newf(cverr.CodePermanent, "backend base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, cverr.New(cverr.CodePermanent, fmt.Errorf("invalid base URL %q: %w", base, err))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:  base,
		apiKey:   cfg.APIKey,
		workPool: cfg.WorkPool,
		httpc:    &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the normalized endpoint the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Target == "" {
		return "", cverr.Newf(cverr.CodePermanent, "submit: target is required")
	}

	body := SubmitRunRequest{
		Parameters:     req.Parameters,
		Tags:           req.Tags,
		WorkPool:       req.WorkPool,
		IdempotencyKey: req.IdempotencyKey,
	}
	if body.WorkPool == "" {
		body.WorkPool = c.workPool
	}

	var run RunResponse
	path := fmt.Sprintf("/api/deployments/%s/runs", url.PathEscape(req.Target))
	if err := c.doJSON(ctx, http.MethodPost, path, body, &run); err != nil {
		return "", fmt.Errorf("submit %s: %w", req.Target, err)
	}
	if run.ID == "" {
		return "", cverr.Newf(cverr.CodeTransient, "submit %s: backend returned empty run id", req.Target)
	}
	return run.ID, nil
}

func (c *Client) GetStatus(ctx context.Context, id string) (State, error) {
	var run RunResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &run)
	if err != nil {
		if cverr.IsCode(err, cverr.CodeNotFound) {
			return StateNotFound, nil
		}
		return StateUnknown, fmt.Errorf("get status %s: %w", id, err)
	}
	return run.State, nil
}

func (c *Client) GetStatuses(ctx context.Context, ids []string) (map[string]State, error) {
	var resp RunFilterResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/runs/filter", RunFilterRequest{IDs: ids}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get statuses: %w", err)
	}

	states := make(map[string]State, len(ids))
	for _, run := range resp.Runs {
		states[run.ID] = run.State
	}
	// Ids missing from the response are unknown to the server.
	for _, id := range ids {
		if _, ok := states[id]; !ok {
			states[id] = StateNotFound
		}
	}
	return states, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) (bool, error) {
	var resp CancelResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(id)+"/cancel", nil, &resp)
	if err != nil {
		if cverr.IsCode(err, cverr.CodeNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("cancel %s: %w", id, err)
	}
	return resp.Cancelled, nil
}

func (c *Client) SetConcurrencyLimit(ctx context.Context, tag string, limit int) error {
	if tag == "" || limit < 0 {
		return cverr.Newf(cverr.CodePermanent, "concurrency limit requires a tag and a non-negative limit")
	}
	body := ConcurrencyLimit{Tag: tag, Limit: limit}
	if err := c.doJSON(ctx, http.MethodPut, "/api/concurrency-limits", body, nil); err != nil {
		return fmt.Errorf("set concurrency limit %s=%d: %w", tag, limit, err)
	}
	return nil
}

func (c *Client) ListConcurrencyLimits(ctx context.Context) ([]ConcurrencyLimit, error) {
	var resp ConcurrencyLimitsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/concurrency-limits", nil, &resp); err != nil {
		return nil, fmt.Errorf("list concurrency limits: %w", err)
	}
	return resp.Limits, nil
}

// doJSON issues one request and decodes the response into out (when out is
// non-nil). Errors carry a cverr code derived from the transport failure
// or HTTP status so callers can decide whether to retry.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return cverr.New(cverr.CodePermanent, fmt.Errorf("encoding request: %w", err))
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return cverr.New(cverr.CodePermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Network-level failures (timeouts, refused connections) are
		// retryable; context cancellation is not.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cverr.New(cverr.CodeTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return cverr.New(cverr.CodeTransient, fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	return c.statusError(resp)
}

func (c *Client) statusError(resp *http.Response) error {
	var apiErr APIError
	msg := resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); err == nil && apiErr.Message != "" {
		msg = fmt.Sprintf("%s: %s", resp.Status, apiErr.Message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return cverr.Newf(cverr.CodeUnauthorized, "%s", msg)
	case resp.StatusCode == http.StatusNotFound:
		return cverr.Newf(cverr.CodeNotFound, "%s", msg)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return cverr.Newf(cverr.CodeTransient, "%s", msg)
	default:
		return cverr.Newf(cverr.CodePermanent, "%s", msg)
	}
}

var (
	_ Backend       = (*Client)(nil)
	_ StatusBatcher = (*Client)(nil)
	_ LimitAdmin    = (*Client)(nil)
)
