package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lzjever/mbos-wps/internal/core"
)

// Mock tests for API handlers without DB dependency

func TestHealthHandler(t *testing.T) {
	api := &API{}
	r := chi.NewRouter()
	r.Get("/healthz", api.HealthHandler)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("expected body OK, got %s", w.Body.String())
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, core.NewAppError(core.ErrBadRequest, "test error"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %s", err)
	}
	if resp.Code != "WPS_BAD_REQUEST" {
		t.Errorf("expected code WPS_BAD_REQUEST, got %s", resp.Code)
	}
}

func TestWriteErrorParams(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, core.NewMissingParameterError("template_group_id"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %s", err)
	}
	if resp.Code != "WPS_CONFIGURATION" {
		t.Errorf("expected code WPS_CONFIGURATION, got %s", resp.Code)
	}
	if resp.Params["parameter"] != "template_group_id" {
		t.Errorf("expected parameter template_group_id, got %v", resp.Params)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"key": "value"}
	WriteJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %s", err)
	}
	if resp["key"] != "value" {
		t.Errorf("expected key=value, got %v", resp)
	}
}

func TestWriteAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAccepted(w, "task-123", "/v1/tasks/")

	if w.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %s", err)
	}
	if resp["task_id"] != "task-123" {
		t.Errorf("expected task_id task-123, got %v", resp["task_id"])
	}
	if resp["status"] != "PENDING" {
		t.Errorf("expected status PENDING, got %v", resp["status"])
	}
}

func TestIdempotencyKeyRequired(t *testing.T) {
	// This test verifies the error response format for missing Idempotency-Key
	w := httptest.NewRecorder()
	WriteError(w, core.NewAppError(core.ErrBadRequest, "Idempotency-Key header required"))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %s", err)
	}
	if resp.Code != "WPS_BAD_REQUEST" {
		t.Errorf("expected code WPS_BAD_REQUEST, got %s", resp.Code)
	}
}

func TestParseLimit(t *testing.T) {
	if got := parseLimit("", 20, 100); got != 20 {
		t.Errorf("expected default 20, got %d", got)
	}
	if got := parseLimit("50", 20, 100); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
	if got := parseLimit("500", 20, 100); got != 100 {
		t.Errorf("expected cap 100, got %d", got)
	}
	if got := parseLimit("junk", 20, 100); got != 20 {
		t.Errorf("expected default on junk, got %d", got)
	}
	if got := parseLimit("0", 20, 100); got != 20 {
		t.Errorf("expected default on zero, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 30, 45, 123456789, time.UTC)
	encoded := encodeCursor(pgtype.Timestamptz{Time: now, Valid: true})
	if encoded == "" {
		t.Fatal("expected non-empty cursor")
	}

	parsed := parseCursor(encoded)
	if !parsed.Valid || !parsed.Time.Equal(now) {
		t.Errorf("expected %s back, got %+v", now, parsed)
	}

	if c := parseCursor("not-base64!"); c.Valid {
		t.Errorf("expected invalid cursor, got %+v", c)
	}
	if c := encodeCursor(pgtype.Timestamptz{}); c != "" {
		t.Errorf("expected empty cursor for null timestamp, got %q", c)
	}
}
