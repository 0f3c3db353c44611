package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"3tcapital/hacienda_client/internal/core/audit"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the audit.Repository interface using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a new PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool) audit.Repository {
	return &Repository{pool: pool, log: nil}
}

// NewRepositoryWithLogger creates a new PostgreSQL audit repository with logging.
func NewRepositoryWithLogger(pool *pgxpool.Pool, log *slog.Logger) audit.Repository {
	return &Repository{pool: pool, log: log}
}

// Save persists one audit record.
func (r *Repository) Save(ctx context.Context, call audit.APICall) error {
	query := `
		INSERT INTO hacienda_api_calls (
			correlation_id, target, operation, request_method, request_url,
			request_headers, request_body, response_status, response_headers,
			response_body, duration_ms, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	requestHeadersJSON, err := json.Marshal(call.RequestHeaders)
	if err != nil {
		errMsg := fmt.Errorf("marshal request headers: %w", err)
		if r.log != nil {
			r.log.Error("Failed to marshal request headers for audit record",
				"correlation_id", call.CorrelationID,
				"target", call.Target,
				"operation", call.Operation,
				"error", errMsg,
			)
		}
		return errMsg
	}

	responseHeadersJSON, err := json.Marshal(call.ResponseHeaders)
	if err != nil {
		errMsg := fmt.Errorf("marshal response headers: %w", err)
		if r.log != nil {
			r.log.Error("Failed to marshal response headers for audit record",
				"correlation_id", call.CorrelationID,
				"target", call.Target,
				"operation", call.Operation,
				"error", errMsg,
			)
		}
		return errMsg
	}

	// Empty bodies insert as NULL, not as empty JSON documents.
	var requestBodyJSON, responseBodyJSON interface{}
	if len(call.RequestBody) > 0 {
		requestBodyJSON = call.RequestBody
	}
	if len(call.ResponseBody) > 0 {
		responseBodyJSON = call.ResponseBody
	}

	_, err = r.pool.Exec(ctx, query,
		call.CorrelationID,
		call.Target,
		call.Operation,
		call.RequestMethod,
		call.RequestURL,
		requestHeadersJSON,
		requestBodyJSON,
		call.ResponseStatus,
		responseHeadersJSON,
		responseBodyJSON,
		call.DurationMs,
		call.ErrorMessage,
	)
	if err != nil {
		errMsg := fmt.Errorf("insert audit record: %w", err)
		if r.log != nil {
			r.log.Error("Failed to insert audit record into database",
				"correlation_id", call.CorrelationID,
				"target", call.Target,
				"operation", call.Operation,
				"method", call.RequestMethod,
				"url", call.RequestURL,
				"response_status", call.ResponseStatus,
				"duration_ms", call.DurationMs,
				"error", errMsg,
			)
		}
		return errMsg
	}

	return nil
}

// FindByCorrelationID retrieves all audit records with the given correlation
// id, oldest first, reconstructing the order of the exchange.
func (r *Repository) FindByCorrelationID(ctx context.Context, correlationID string) ([]audit.APICall, error) {
	query := `
		SELECT id, correlation_id, target, operation, request_method, request_url,
		       request_headers, request_body, response_status, response_headers,
		       response_body, duration_ms, error_message, created_at
		FROM hacienda_api_calls
		WHERE correlation_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var calls []audit.APICall
	for rows.Next() {
		var call audit.APICall
		var requestHeadersJSON, responseHeadersJSON []byte
		var requestBodyJSON, responseBodyJSON []byte

		err := rows.Scan(
			&call.ID,
			&call.CorrelationID,
			&call.Target,
			&call.Operation,
			&call.RequestMethod,
			&call.RequestURL,
			&requestHeadersJSON,
			&requestBodyJSON,
			&call.ResponseStatus,
			&responseHeadersJSON,
			&responseBodyJSON,
			&call.DurationMs,
			&call.ErrorMessage,
			&call.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		if err := json.Unmarshal(requestHeadersJSON, &call.RequestHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal request headers: %w", err)
		}
		if err := json.Unmarshal(responseHeadersJSON, &call.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal response headers: %w", err)
		}

		call.RequestBody = requestBodyJSON
		call.ResponseBody = responseBodyJSON

		calls = append(calls, call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return calls, nil
}
