package backend

// Wire schemas for the scheduler's REST API.

// SubmitRunRequest is the body of POST /api/deployments/{target}/runs.
type SubmitRunRequest struct {
	Parameters     map[string]any `json:"parameters,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	WorkPool       string         `json:"work_pool,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// RunResponse is returned by submission and status reads.
type RunResponse struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	Name  string `json:"name,omitempty"`
}

// RunFilterRequest is the body of POST /api/runs/filter, the batched
// status read. Ids the server does not know are simply absent from the
// response.
type RunFilterRequest struct {
	IDs []string `json:"ids"`
}

// RunFilterResponse lists the runs matching a filter.
type RunFilterResponse struct {
	Runs []RunResponse `json:"runs"`
}

// CancelResponse is returned by POST /api/runs/{id}/cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ConcurrencyLimitsResponse is returned by GET /api/concurrency-limits.
type ConcurrencyLimitsResponse struct {
	Limits []ConcurrencyLimit `json:"limits"`
}

// APIError is the error envelope the scheduler returns on non-2xx.
type APIError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
