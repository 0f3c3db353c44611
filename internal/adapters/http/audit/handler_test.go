package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	coreaudit "3tcapital/hacienda_client/internal/core/audit"
	"3tcapital/hacienda_client/internal/testutil"
)

type stubRepository struct {
	calls []coreaudit.APICall
	err   error
}

func (s *stubRepository) Save(ctx context.Context, call coreaudit.APICall) error {
	return nil
}

func (s *stubRepository) FindByCorrelationID(ctx context.Context, correlationID string) ([]coreaudit.APICall, error) {
	return s.calls, s.err
}

func newTrailRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/audit/calls/{correlationID}", h.GetTrail)
	return r
}

func TestHandler_GetTrail(t *testing.T) {
	status := 202
	repo := &stubRepository{
		calls: []coreaudit.APICall{
			{
				ID:             1,
				CorrelationID:  "abc-123",
				Target:         coreaudit.TargetIDP,
				Operation:      "token",
				RequestMethod:  http.MethodPost,
				RequestURL:     "https://idp.comprobanteselectronicos.go.cr/auth/realms/rut-stag/protocol/openid-connect/token",
				RequestHeaders: map[string]string{"Authorization": "[REDACTED]"},
				DurationMs:     120,
				CreatedAt:      time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
			},
			{
				ID:             2,
				CorrelationID:  "abc-123",
				Target:         coreaudit.TargetHacienda,
				Operation:      "submit",
				RequestMethod:  http.MethodPost,
				RequestURL:     "https://api.comprobanteselectronicos.go.cr/recepcion-sandbox/v1/recepcion",
				ResponseStatus: &status,
				DurationMs:     340,
				CreatedAt:      time.Date(2025, 1, 15, 10, 30, 1, 0, time.UTC),
			},
		},
	}

	router := newTrailRouter(NewHandler(repo, testutil.NewNullLogger()))

	req := httptest.NewRequest(http.MethodGet, "/audit/calls/abc-123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status code %d, got %d", http.StatusOK, w.Code)
	}

	var response TrailResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.CorrelationID != "abc-123" {
		t.Errorf("expected correlation id 'abc-123', got %q", response.CorrelationID)
	}
	if response.Total != 2 {
		t.Errorf("expected total 2, got %d", response.Total)
	}
	if len(response.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(response.Calls))
	}
	if response.Calls[0].Operation != "token" || response.Calls[1].Operation != "submit" {
		t.Errorf("expected trail order token then submit, got %q then %q",
			response.Calls[0].Operation, response.Calls[1].Operation)
	}
	if response.Calls[0].RequestHeaders["Authorization"] != "[REDACTED]" {
		t.Errorf("expected sanitized header to pass through, got %q", response.Calls[0].RequestHeaders["Authorization"])
	}
	if response.Calls[1].ResponseStatus == nil || *response.Calls[1].ResponseStatus != 202 {
		t.Error("expected response status 202 on the submit call")
	}
}

func TestHandler_GetTrail_Empty(t *testing.T) {
	router := newTrailRouter(NewHandler(&stubRepository{}, testutil.NewNullLogger()))

	req := httptest.NewRequest(http.MethodGet, "/audit/calls/unknown-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status code %d, got %d", http.StatusOK, w.Code)
	}

	var response TrailResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 0 {
		t.Errorf("expected total 0, got %d", response.Total)
	}
	if response.Calls == nil {
		t.Error("expected calls to be an empty array, not null")
	}
}

func TestHandler_GetTrail_RepositoryError(t *testing.T) {
	repo := &stubRepository{err: errors.New("connection refused")}
	router := newTrailRouter(NewHandler(repo, testutil.NewNullLogger()))

	req := httptest.NewRequest(http.MethodGet, "/audit/calls/abc-123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status code %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestHandler_GetTrail_NoRepository(t *testing.T) {
	router := newTrailRouter(NewHandler(nil, testutil.NewNullLogger()))

	req := httptest.NewRequest(http.MethodGet, "/audit/calls/abc-123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestHandler_GetTrail_MissingParam(t *testing.T) {
	handler := NewHandler(&stubRepository{}, testutil.NewNullLogger())

	// Without a route context there is no URL parameter to read.
	req := httptest.NewRequest(http.MethodGet, "/audit/calls/", nil)
	w := httptest.NewRecorder()
	handler.GetTrail(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status code %d, got %d", http.StatusBadRequest, w.Code)
	}
}
