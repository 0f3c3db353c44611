package hacienda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// RequestOptions tweak a single outbound call.
type RequestOptions struct {
	// SkipAuth omits the Authorization header. Used for endpoints reachable
	// before a session exists.
	SkipAuth bool
	// Headers are extra headers set on the request.
	Headers map[string]string
}

// Response is a decoded API response. Raw always holds the body as received;
// JSON is set only when the body parses as JSON, whatever the declared
// content type says.
type Response struct {
	StatusCode int
	Header     http.Header
	Raw        []byte
	JSON       json.RawMessage
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.JSON) == 0 {
		return errors.New("response has no JSON body")
	}
	return json.Unmarshal(r.JSON, v)
}

// Client executes authenticated JSON requests against the invoicing API.
// Every attempt is admitted by the rate limiter individually, so retry
// backoff can never burst past the window; the retry policy wraps the whole
// exchange including token renewal.
type Client struct {
	baseURL   string
	tokens    *TokenManager
	transport HTTPClient
	limiter   *RateLimiter
	retry     *RetryPolicy
	log       *slog.Logger
}

// NewClient creates an API client rooted at baseURL. limiter and retry may be
// nil, which disables throttling and retries respectively.
func NewClient(baseURL string, tokens *TokenManager, transport HTTPClient, limiter *RateLimiter, retry *RetryPolicy, log *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		transport: transport,
		limiter:   limiter,
		retry:     retry,
		log:       log,
	}
}

// Get issues a GET against the API base URL.
func (c *Client) Get(ctx context.Context, path string, opts RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

// Post issues a POST with a JSON body against the API base URL.
func (c *Client) Post(ctx context.Context, path string, body any, opts RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts)
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts RequestOptions) (*Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	var resp *Response
	attempt := func(ctx context.Context) error {
		r, err := c.attemptOnce(ctx, method, path, payload, opts)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	var err error
	if c.retry != nil {
		err = c.retry.Do(ctx, attempt)
	} else {
		err = attempt(ctx)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attemptOnce runs one rate-limited request attempt.
func (c *Client) attemptOnce(ctx context.Context, method, path string, payload []byte, opts RequestOptions) (*Response, error) {
	if c.limiter == nil {
		return c.send(ctx, method, path, payload, opts)
	}
	var resp *Response
	err := c.limiter.Execute(ctx, func() error {
		r, err := c.send(ctx, method, path, payload, opts)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, opts RequestOptions) (*Response, error) {
	requestURL := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	if !opts.SkipAuth {
		token, err := c.tokens.GetAccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Debug("Sending API request", "method", method, "url", requestURL)

	httpResp, err := c.transport.Do(req)
	if err != nil {
		return nil, &APIError{cause: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: httpResp.StatusCode, cause: fmt.Errorf("read response body: %w", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		c.log.Warn("API request failed",
			"method", method,
			"url", requestURL,
			"status", httpResp.StatusCode,
		)
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: string(raw)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Raw:        raw,
	}
	// Content-Type headers are unreliable here; a body that parses as JSON is
	// treated as JSON, anything else stays raw.
	if httpResp.StatusCode != http.StatusNoContent && len(raw) > 0 && json.Valid(raw) {
		resp.JSON = json.RawMessage(raw)
	}

	c.log.Debug("API response received", "status", httpResp.StatusCode, "bytes", len(raw))
	return resp, nil
}
