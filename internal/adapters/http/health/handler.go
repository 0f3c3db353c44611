package health

import (
	"encoding/json"
	"net/http"

	apphealth "3tcapital/hacienda_client/internal/application/health"
)

// Handler bridges HTTP traffic with the health application service.
type Handler struct {
	service *apphealth.Service
}

func NewHandler(service *apphealth.Service) *Handler {
	return &Handler{service: service}
}

// Status serves the health snapshot. A degraded service answers 503 so load
// balancers rotate it out while the body still explains which check failed.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	response := h.service.Status(r.Context())

	code := http.StatusOK
	if response.Status != "UP" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}
