package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Targets identify which external system an outbound call was made against.
const (
	TargetIDP      = "idp"
	TargetHacienda = "hacienda"
)

// APICall is an audit record of one outbound HTTP exchange with the identity
// provider or the invoicing API. Headers and bodies arrive here already
// sanitized; credentials and tokens never reach this type in clear text.
type APICall struct {
	ID              int64
	CorrelationID   string
	Target          string
	Operation       string
	RequestMethod   string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	DurationMs      int64
	ErrorMessage    string
	CreatedAt       time.Time
}

// Repository defines the contract for persisting and retrieving audit records.
type Repository interface {
	// Save persists one audit record.
	Save(ctx context.Context, call APICall) error

	// FindByCorrelationID retrieves all records associated with a correlation
	// id, oldest first. Useful for reconstructing the full exchange history
	// of a submission.
	FindByCorrelationID(ctx context.Context, correlationID string) ([]APICall, error)
}
