package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"archwall.mini/aw/internal/types"
	"archwall.mini/aw/internal/wallet"
)

func TestHandleHealth(t *testing.T) {
	f := setupTest(t, wallet.AutoApprover)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	f.svc.HandleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status OK, got %v", resp.Status)
	}
}

func TestHandleVersion(t *testing.T) {
	f := setupTest(t, wallet.AutoApprover)

	w := httptest.NewRecorder()
	f.svc.HandleVersion(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["version"] != types.Version {
		t.Errorf("Expected version %s, got %s", types.Version, body["version"])
	}
	if _, ok := body["session_id"]; ok {
		t.Error("Disconnected client should not report a session")
	}
}

func TestHandleLogs(t *testing.T) {
	f := setupTest(t, wallet.AutoApprover)
	f.ring.Log("info", "first")
	f.ring.Log("warning", "second")

	w := httptest.NewRecorder()
	f.svc.HandleLogs(w, httptest.NewRequest(http.MethodGet, "/api/logs?limit=1", nil))

	var msgs []struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "second" {
		t.Errorf("Expected newest message only, got %+v", msgs)
	}

	w = httptest.NewRecorder()
	f.svc.HandleLogs(w, httptest.NewRequest(http.MethodGet, "/api/logs?limit=zero", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status BadRequest, got %d", w.Code)
	}
}
