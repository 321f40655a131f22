package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conveyordev/conveyor/pkg/cverr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", WorkPool: "default-pool"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClientSubmit(t *testing.T) {
	var gotAuth string
	var gotBody SubmitRunRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/deployments/etl-deployment/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(RunResponse{ID: "run-123", State: StatePending})
	}))

	id, err := c.Submit(context.Background(), SubmitRequest{
		Target:         "etl-deployment",
		Parameters:     map[string]any{"table": "customers"},
		Tags:           []string{"database"},
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if id != "run-123" {
		t.Errorf("id = %q, want run-123", id)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotBody.WorkPool != "default-pool" {
		t.Errorf("work pool = %q, want the client default", gotBody.WorkPool)
	}
	if gotBody.IdempotencyKey != "key-1" {
		t.Errorf("idempotency key = %q, want key-1", gotBody.IdempotencyKey)
	}
}

func TestClientSubmitServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Submit(context.Background(), SubmitRequest{Target: "etl-deployment"})
	if !cverr.IsCode(err, cverr.CodeTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestClientSubmitBadRequest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(APIError{Message: "unknown parameter"})
	}))

	_, err := c.Submit(context.Background(), SubmitRequest{Target: "etl-deployment"})
	if !cverr.IsCode(err, cverr.CodePermanent) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

func TestClientSubmitUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Submit(context.Background(), SubmitRequest{Target: "etl-deployment"})
	if !cverr.IsCode(err, cverr.CodeUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestClientGetStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs/run-123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RunResponse{ID: "run-123", State: StateRunning})
	}))

	st, err := c.GetStatus(context.Background(), "run-123")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st != StateRunning {
		t.Errorf("state = %s, want running", st)
	}
}

func TestClientGetStatusNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	st, err := c.GetStatus(context.Background(), "run-gone")
	if err != nil {
		t.Fatalf("GetStatus: %v, want nil for a forgotten run", err)
	}
	if st != StateNotFound {
		t.Errorf("state = %s, want not_found", st)
	}
}

func TestClientGetStatuses(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/runs/filter" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req RunFilterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding filter: %v", err)
		}
		json.NewEncoder(w).Encode(RunFilterResponse{Runs: []RunResponse{
			{ID: "run-1", State: StateCompleted},
			{ID: "run-2", State: StateRunning},
		}})
	}))

	states, err := c.GetStatuses(context.Background(), []string{"run-1", "run-2", "run-3"})
	if err != nil {
		t.Fatalf("GetStatuses: %v", err)
	}

	if states["run-1"] != StateCompleted || states["run-2"] != StateRunning {
		t.Errorf("states = %v", states)
	}
	if states["run-3"] != StateNotFound {
		t.Errorf("missing run state = %s, want not_found", states["run-3"])
	}
}

func TestClientCancelJob(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/runs/run-123/cancel" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(CancelResponse{Cancelled: true})
	}))

	ok, err := c.CancelJob(context.Background(), "run-123")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if !ok {
		t.Error("Cancelled = false, want true")
	}
}

func TestClientCancelUnknownJob(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	ok, err := c.CancelJob(context.Background(), "run-gone")
	if err != nil {
		t.Fatalf("CancelJob: %v, want nil for an unknown run", err)
	}
	if ok {
		t.Error("Cancelled = true for an unknown run, want false")
	}
}

func TestClientConcurrencyLimits(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var body ConcurrencyLimit
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decoding limit: %v", err)
			}
			if body.Tag != "database" || body.Limit != 3 {
				t.Errorf("limit body = %+v", body)
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			json.NewEncoder(w).Encode(ConcurrencyLimitsResponse{Limits: []ConcurrencyLimit{
				{Tag: "database", Limit: 3},
			}})
		}
	}))

	if err := c.SetConcurrencyLimit(context.Background(), "database", 3); err != nil {
		t.Fatalf("SetConcurrencyLimit: %v", err)
	}

	limits, err := c.ListConcurrencyLimits(context.Background())
	if err != nil {
		t.Fatalf("ListConcurrencyLimits: %v", err)
	}
	if len(limits) != 1 || limits[0].Tag != "database" || limits[0].Limit != 3 {
		t.Errorf("limits = %+v", limits)
	}
}

func TestClientNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: url})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.Submit(context.Background(), SubmitRequest{Target: "etl-deployment"})
	if !cverr.IsCode(err, cverr.CodeTransient) {
		t.Fatalf("err = %v, want transient for a refused connection", err)
	}
}

func TestClientContextCancellation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetStatus(ctx, "run-123")
	if cverr.IsCode(err, cverr.CodeTransient) {
		t.Fatalf("err = %v, cancellation must not look retryable", err)
	}
	if err == nil {
		t.Fatal("err = nil, want context error")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("empty base URL accepted")
	}
	c, err := NewClient(ClientConfig{BaseURL: " http://localhost:4200/ "})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.BaseURL(); got != "http://localhost:4200" {
		t.Errorf("BaseURL = %q, want trimmed and normalized", got)
	}
}
