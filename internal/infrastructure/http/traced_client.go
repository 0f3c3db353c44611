package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"3tcapital/hacienda_client/internal/core/audit"
	ctxutil "3tcapital/hacienda_client/internal/infrastructure/context"
	"3tcapital/hacienda_client/internal/infrastructure/security"
)

// TracedClient wraps an HTTP client with request/response tracing: structured
// logs, sensitive-data sanitization and an asynchronous audit trail. One
// instance serves one target (identity provider or ministry API), which the
// audit rows are keyed on.
type TracedClient struct {
	client       *http.Client
	log          *slog.Logger
	auditRepo    audit.Repository
	target       string
	auditEnabled bool
	logReqBody   bool
	logRespBody  bool
	maxBodySize  int
}

// TracedClientConfig holds configuration for the traced HTTP client.
type TracedClientConfig struct {
	Timeout         time.Duration
	AuditEnabled    bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
	MaxConnsPerHost int
}

// NewTracedClient creates a traced HTTP client with connection pooling tuned
// for a single upstream host. auditRepo may be nil, which disables the trail.
func NewTracedClient(cfg *TracedClientConfig, log *slog.Logger, auditRepo audit.Repository, target string) *TracedClient {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 102400
	}

	maxConnsPerHost := cfg.MaxConnsPerHost
	if maxConnsPerHost == 0 {
		maxConnsPerHost = 50
	}

	// ResponseHeaderTimeout must not undercut the client timeout, or slow
	// ministry responses get cut off while headers are still pending.
	responseHeaderTimeout := cfg.Timeout
	if responseHeaderTimeout < 60*time.Second {
		responseHeaderTimeout = 60 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &TracedClient{
		client: NewClient(&ClientConfig{
			Timeout:   cfg.Timeout,
			Transport: transport,
		}),
		log:          log,
		auditRepo:    auditRepo,
		target:       target,
		auditEnabled: cfg.AuditEnabled,
		logReqBody:   cfg.LogRequestBody,
		logRespBody:  cfg.LogResponseBody,
		maxBodySize:  cfg.MaxBodySize,
	}
}

// Do executes an HTTP request with full tracing. Request and response bodies
// are captured and restored for the caller; the audit row is persisted on a
// detached context so it survives the request's own lifecycle.
func (c *TracedClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	correlationID := ctxutil.GetCorrelationID(ctx)
	operation := c.operationName(req)
	start := time.Now()

	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	var requestBody []byte
	if req.Body != nil {
		var err error
		requestBody, err = io.ReadAll(req.Body)
		if err != nil {
			c.log.Error("Failed to read request body for tracing",
				"error", err,
				"correlation_id", correlationID,
			)
		}
		req.Body = io.NopCloser(bytes.NewBuffer(requestBody))
	}

	c.logRequest(correlationID, operation, req, requestBody)

	resp, err := c.client.Do(req)
	duration := time.Since(start)

	var responseBody []byte
	if resp != nil && resp.Body != nil {
		responseBody, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(responseBody))
	}

	c.logResponse(correlationID, operation, req, resp, err, duration, responseBody)

	if c.auditEnabled && c.auditRepo != nil {
		if correlationID == "" {
			correlationID = ctxutil.NewCorrelationID()
		}

		// The request context is finished once the response is returned, so
		// persistence runs detached with its own deadline.
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("Panic in audit trail persistence",
						"panic", r,
						"correlation_id", correlationID,
						"operation", operation,
						"target", c.target,
					)
				}
			}()

			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			c.persistAuditTrail(saveCtx, correlationID, operation, req, resp, err, duration, requestBody, responseBody)
		}()
	}

	return resp, err
}

func (c *TracedClient) logRequest(correlationID, operation string, req *http.Request, body []byte) {
	attrs := []any{
		"correlation_id", correlationID,
		"target", c.target,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
	}

	if c.logReqBody && len(body) > 0 {
		sanitized := security.SanitizeBody(body, req.Header.Get("Content-Type"), c.maxBodySize)
		attrs = append(attrs, "request_body", string(sanitized))
	}

	c.log.Info("outbound_request", attrs...)
}

func (c *TracedClient) logResponse(correlationID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, body []byte) {
	attrs := []any{
		"correlation_id", correlationID,
		"target", c.target,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.log.Error("outbound_request_failed", attrs...)
		return
	}

	attrs = append(attrs, "status", resp.StatusCode)
	attrs = append(attrs, "response_size_bytes", len(body))

	if c.logRespBody && len(body) > 0 {
		sanitized := security.SanitizeBody(body, resp.Header.Get("Content-Type"), c.maxBodySize)
		attrs = append(attrs, "response_body", string(sanitized))
	}

	switch {
	case resp.StatusCode >= 500:
		c.log.Error("outbound_response", attrs...)
	case resp.StatusCode >= 400:
		c.log.Warn("outbound_response", attrs...)
	default:
		c.log.Info("outbound_response", attrs...)
	}
}

// persistAuditTrail saves the request/response pair. Failures are logged and
// swallowed; auditing never fails the call it describes.
func (c *TracedClient) persistAuditTrail(ctx context.Context, correlationID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, requestBody, responseBody []byte) {
	call := audit.APICall{
		CorrelationID:  correlationID,
		Target:         c.target,
		Operation:      operation,
		RequestMethod:  req.Method,
		RequestURL:     security.SanitizeURL(req.URL.String()),
		RequestHeaders: security.SanitizeHeaders(req.Header),
		DurationMs:     duration.Milliseconds(),
	}

	if len(requestBody) > 0 {
		call.RequestBody = security.SanitizeBody(requestBody, req.Header.Get("Content-Type"), c.maxBodySize)
	}

	if resp != nil {
		status := resp.StatusCode
		call.ResponseStatus = &status
		call.ResponseHeaders = security.SanitizeHeaders(resp.Header)
		if len(responseBody) > 0 {
			call.ResponseBody = security.SanitizeBody(responseBody, resp.Header.Get("Content-Type"), c.maxBodySize)
		}
	}

	if err != nil {
		call.ErrorMessage = err.Error()
	}

	if saveErr := c.auditRepo.Save(ctx, call); saveErr != nil {
		c.log.Error("Failed to persist audit trail",
			"error", saveErr,
			"correlation_id", correlationID,
			"target", c.target,
			"operation", operation,
		)
		return
	}

	c.log.Debug("Audit trail persisted",
		"correlation_id", correlationID,
		"target", c.target,
		"operation", operation,
		"duration_ms", call.DurationMs,
	)
}

// operationName maps a request onto the small set of operations this client
// performs, so audit rows stay queryable instead of carrying raw claves.
func (c *TracedClient) operationName(req *http.Request) string {
	path := req.URL.Path

	switch {
	case strings.HasSuffix(path, "/token"):
		return "token"
	case strings.HasSuffix(path, "/recepcion"):
		return "submit"
	case strings.Contains(path, "/recepcion/"):
		return "status"
	}

	return fmt.Sprintf("%s_%s", strings.ToLower(req.Method), c.target)
}
