// Package audit exposes the persisted outbound-call journal to operators. A
// correlation id groups every IDP and API exchange made on behalf of one
// logical operation, so the trail reconstructs what the client actually sent
// and received.
package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	coreaudit "3tcapital/hacienda_client/internal/core/audit"
	httperrors "3tcapital/hacienda_client/internal/infrastructure/http"
)

// Handler serves audit trail queries.
type Handler struct {
	repo coreaudit.Repository
	log  *slog.Logger
}

// NewHandler creates an audit trail handler.
// repo can be nil - if nil, audit queries will return 503.
func NewHandler(repo coreaudit.Repository, log *slog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log,
	}
}

// TrailResponse lists the calls recorded under one correlation id.
type TrailResponse struct {
	CorrelationID string     `json:"correlation_id"`
	Total         int        `json:"total"`
	Calls         []CallView `json:"calls"`
}

// CallView is the wire shape of one audit record. Bodies and headers were
// sanitized before persistence, so they are safe to return as stored.
type CallView struct {
	ID              int64             `json:"id"`
	Target          string            `json:"target"`
	Operation       string            `json:"operation"`
	RequestMethod   string            `json:"request_method"`
	RequestURL      string            `json:"request_url"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     json.RawMessage   `json:"request_body,omitempty"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    json.RawMessage   `json:"response_body,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// GetTrail handles GET /audit/calls/{correlationID}.
func (h *Handler) GetTrail(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		httperrors.WriteError(w, http.StatusBadRequest, "Error de Validación", []string{"El parámetro correlationID es requerido"}, h.log)
		return
	}

	if h.repo == nil {
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Servicio temporalmente no disponible",
			[]string{"Bitácora de auditoría no configurada"}, h.log)
		return
	}

	calls, err := h.repo.FindByCorrelationID(r.Context(), correlationID)
	if err != nil {
		h.log.Error("Failed to query audit trail", "correlation_id", correlationID, "error", err)
		httperrors.WriteError(w, http.StatusInternalServerError, "Error Interno del Servidor", []string{"Ha ocurrido un error interno"}, h.log)
		return
	}

	// No records is a valid answer, not a 404; the array stays non-null.
	response := TrailResponse{
		CorrelationID: correlationID,
		Total:         len(calls),
		Calls:         make([]CallView, 0, len(calls)),
	}
	for _, call := range calls {
		response.Calls = append(response.Calls, CallView{
			ID:              call.ID,
			Target:          call.Target,
			Operation:       call.Operation,
			RequestMethod:   call.RequestMethod,
			RequestURL:      call.RequestURL,
			RequestHeaders:  call.RequestHeaders,
			RequestBody:     call.RequestBody,
			ResponseStatus:  call.ResponseStatus,
			ResponseHeaders: call.ResponseHeaders,
			ResponseBody:    call.ResponseBody,
			DurationMs:      call.DurationMs,
			ErrorMessage:    call.ErrorMessage,
			CreatedAt:       call.CreatedAt,
		})
	}

	httperrors.WriteJSON(w, http.StatusOK, response, h.log)
}
