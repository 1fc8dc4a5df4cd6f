package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/roadside-dispatch/internal/dispatch"
	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/rank"
	"github.com/example/roadside-dispatch/internal/registry"
	"github.com/example/roadside-dispatch/internal/storage"
)

type testEnv struct {
	srv   *Server
	store *storage.MemoryStore
	reg   *registry.Index
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	reg := registry.NewIndex()
	ws := dispatch.NewWSNotifier(logger)
	orch := dispatch.NewOrchestrator(reg, &rank.Ranker{Logger: logger}, store, ws, logger, dispatch.SequencerConfig{
		OfferTimeout: 50 * time.Millisecond,
	})
	return &testEnv{
		srv:   NewServer(context.Background(), reg, orch, store, nil, ws, nil, logger),
		store: store,
		reg:   reg,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func TestCreateRequestReturnsFare(t *testing.T) {
	e := newTestServer(t)
	w := e.do(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"customer_id": "c1",
		"pickup":      map[string]float64{"lat": 23.6100, "lon": 58.4059},
		"dropoff":     map[string]float64{"lat": 23.5880, "lon": 58.3829},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		RequestID string `json:"request_id"`
		Fare      struct {
			Total float64 `json:"total"`
		} `json:"fare"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RequestID == "" {
		t.Fatal("expected request_id in response")
	}
	if resp.Fare.Total < 5.0 {
		t.Fatalf("fare below minimum: %v", resp.Fare.Total)
	}
	if _, err := e.store.GetRequest(resp.RequestID); err != nil {
		t.Fatalf("request not persisted: %v", err)
	}
}

func TestCreateRequestRequiresCustomer(t *testing.T) {
	e := newTestServer(t)
	w := e.do(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"pickup": map[string]float64{"lat": 1, "lon": 2},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	e := newTestServer(t)
	if w := e.do(t, http.MethodGet, "/api/v1/requests/ghost", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	e := newTestServer(t)
	now := time.Now()
	if err := e.store.CreateRequest(&models.ServiceRequest{
		ID: "r1", CustomerID: "c1", Status: models.StatusSearching, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	if w := e.do(t, http.MethodPost, "/api/v1/requests/r1/cancel", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	r, _ := e.store.GetRequest("r1")
	if r.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", r.Status)
	}
	// cancelling again stays 204
	if w := e.do(t, http.MethodPost, "/api/v1/requests/r1/cancel", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on repeat cancel, got %d", w.Code)
	}
}

func TestDriverResponseForUnknownRequestIs204(t *testing.T) {
	e := newTestServer(t)
	w := e.do(t, http.MethodPost, "/api/v1/requests/ghost/response", map[string]any{
		"driver_id": "d1", "accepted": true,
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for stale response, got %d", w.Code)
	}
}

func TestDriverStatusAndLocationFeedRegistry(t *testing.T) {
	e := newTestServer(t)
	if w := e.do(t, http.MethodPost, "/internal/driver/status", map[string]any{
		"driver_id": "d1", "online": true, "approval": "approved",
	}); w.Code != http.StatusNoContent {
		t.Fatalf("status update failed: %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/internal/driver/locations", map[string]any{
		"driver_id": "d1", "lat": 23.61, "lon": 58.40,
	}); w.Code != http.StatusNoContent {
		t.Fatalf("location update failed: %d", w.Code)
	}
	if !e.reg.Eligible("d1") {
		t.Fatal("expected d1 eligible after status and location updates")
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := newTestServer(t)
	w := e.do(t, http.MethodGet, "/internal/dispatch/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st struct {
		InFlight int `json:"in_flight"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.InFlight != 0 {
		t.Fatalf("expected 0 in flight, got %d", st.InFlight)
	}
}
