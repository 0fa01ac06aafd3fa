package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/internal/engine"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng := engine.NewEngine(zap.NewNop(), engine.DefaultConfig())
	return NewServer(zap.NewNop(), Config{Host: "localhost", Port: 0}, eng)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status = %v, want ok", payload["status"])
	}
}

func TestStateBeforeFirstTick(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before any tick", rec.Code)
	}
}

func TestTickIngestAndState(t *testing.T) {
	s := newTestServer(t)

	bundle := types.MarketBundle{
		Symbol:    "SPX",
		Timestamp: 1000,
		Fast: types.StreamFrame{
			Bars: []types.Bar{{Timestamp: 1000, Open: 100, High: 100, Low: 100, Close: 100, Volume: 500}},
		},
	}
	body, _ := json.Marshal(bundle)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tick", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("tick status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var state types.SystemState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Timestamp != 1000 {
		t.Errorf("state timestamp = %d, want 1000", state.Timestamp)
	}

	// The state is now queryable.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("state status = %d, want 200", rec.Code)
	}
}

func TestBadBundleRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tick", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestKillSwitchEndpoint(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"active": true, "reason": "operator halt"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/kill-switch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !s.engine.Risk().KillSwitch().Active {
		t.Error("kill switch should be active")
	}

	body = []byte(`{"active": false}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/risk/kill-switch", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if s.engine.Risk().KillSwitch().Active {
		t.Error("kill switch should be cleared")
	}
}

func TestPatternStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patterns/stats", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
