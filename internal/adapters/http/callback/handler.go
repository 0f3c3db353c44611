// Package callback receives the status notifications Hacienda pushes to the
// callbackUrl registered on submission. A callback carries the same payload
// as the status poll endpoint, so accepting it is an alternative to polling.
package callback

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"3tcapital/hacienda_client/internal/core/document"
	httperrors "3tcapital/hacienda_client/internal/infrastructure/http"
)

// Subscriber consumes decoded ministry callbacks. It runs on the request
// goroutine, so implementations must return quickly; anything slow belongs
// behind a channel.
type Subscriber func(ctx context.Context, status document.StatusResponse)

// Handler exposes the ministry callback endpoint.
type Handler struct {
	subscriber Subscriber
	log        *slog.Logger
}

// NewHandler creates a callback handler.
// subscriber can be nil - if nil, callbacks will return 503.
func NewHandler(subscriber Subscriber, log *slog.Logger) *Handler {
	return &Handler{
		subscriber: subscriber,
		log:        log,
	}
}

// ReceiveResponse acknowledges a processed callback.
type ReceiveResponse struct {
	Message string `json:"message"`
	Clave   string `json:"clave"`
}

// Receive handles POST /callbacks/hacienda.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.WriteError(w, http.StatusMethodNotAllowed, "Método no permitido", []string{"Este endpoint solo acepta POST"}, h.log)
		return
	}

	var status document.StatusResponse
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		httperrors.WriteError(w, http.StatusBadRequest, "Error al procesar el callback: Datos inválidos", []string{"El cuerpo de la petición no es válido"}, h.log)
		return
	}

	if status.Clave == "" {
		httperrors.WriteError(w, http.StatusBadRequest, "Error al procesar el callback: Datos inválidos", []string{"clave es requerida"}, h.log)
		return
	}

	if !document.IsValidClave(status.Clave) {
		httperrors.WriteError(w, http.StatusBadRequest, "Error al procesar el callback: Datos inválidos", []string{"La clave debe tener 50 dígitos"}, h.log)
		return
	}

	if h.subscriber == nil {
		h.log.Error("Callback subscriber not configured", "clave", status.Clave)
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Servicio temporalmente no disponible",
			[]string{"Procesamiento de callbacks no configurado"}, h.log)
		return
	}

	h.log.Info("Hacienda callback received",
		"clave", status.Clave,
		"ind_estado", status.IndEstado,
		"terminal", status.Status().IsTerminal())

	h.subscriber(r.Context(), status)

	httperrors.WriteJSON(w, http.StatusOK, ReceiveResponse{
		Message: "Callback procesado",
		Clave:   status.Clave,
	}, h.log)
}
