package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"3tcapital/hacienda_client/internal/core/audit"
)

// Note: exercising the SQL itself requires a PostgreSQL instance and is left
// to integration runs. These tests cover the interface contract and the value
// handling the repository relies on.

func TestRepositoryImplementsInterface(t *testing.T) {
	var _ audit.Repository = (*Repository)(nil)
}

func TestAPICallStructure(t *testing.T) {
	call := audit.APICall{
		CorrelationID: "test-123",
		Target:        audit.TargetHacienda,
		Operation:     "submit",
		RequestMethod: "POST",
		RequestURL:    "https://api.comprobanteselectronicos.go.cr/recepcion-sandbox/v1/recepcion",
		RequestHeaders: map[string]string{
			"Content-Type": "application/json",
		},
		RequestBody:    json.RawMessage(`{"clave":"50601082600310112345600100001010000000011199999999"}`),
		ResponseStatus: func() *int { v := 202; return &v }(),
		ResponseHeaders: map[string]string{
			"Location": "/recepcion/50601082600310112345600100001010000000011199999999",
		},
		ResponseBody: nil,
		DurationMs:   150,
		ErrorMessage: "",
		CreatedAt:    time.Now(),
	}

	headersJSON, err := json.Marshal(call.RequestHeaders)
	if err != nil {
		t.Fatalf("failed to marshal headers: %v", err)
	}

	var headers map[string]string
	if err := json.Unmarshal(headersJSON, &headers); err != nil {
		t.Fatalf("failed to unmarshal headers: %v", err)
	}

	if headers["Content-Type"] != "application/json" {
		t.Error("headers not properly serialized")
	}

	var reqBody map[string]interface{}
	if err := json.Unmarshal(call.RequestBody, &reqBody); err != nil {
		t.Fatalf("request body is not valid JSON: %v", err)
	}
}

func TestAPICallNilHandling(t *testing.T) {
	// A failed network call has no response at all; the row still has to be
	// representable.
	call := audit.APICall{
		CorrelationID:   "test-456",
		Target:          audit.TargetIDP,
		Operation:       "token",
		RequestMethod:   "POST",
		RequestURL:      "https://idp.comprobanteselectronicos.go.cr/auth/realms/rut-stag/protocol/openid-connect/token",
		RequestHeaders:  nil,
		RequestBody:     nil,
		ResponseStatus:  nil,
		ResponseHeaders: nil,
		ResponseBody:    nil,
		DurationMs:      100,
		ErrorMessage:    "connection timeout",
		CreatedAt:       time.Now(),
	}

	headersJSON, err := json.Marshal(call.RequestHeaders)
	if err != nil {
		t.Fatalf("failed to marshal nil headers: %v", err)
	}

	if string(headersJSON) != "null" {
		t.Errorf("expected null for nil headers, got %s", string(headersJSON))
	}

	if call.ResponseStatus != nil {
		t.Error("expected nil response status for a network failure")
	}
}
