package testutil

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
)

// TransportFunc adapts a plain function to the Do-style HTTP transport
// interface used by the outbound clients.
type TransportFunc func(req *http.Request) (*http.Response, error)

// Do calls the wrapped function.
func (f TransportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RecordedRequest is a snapshot of a request seen by a MockTransport, with
// the body already consumed into a byte slice.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// MockTransport records every request it receives and delegates to DoFunc.
// When DoFunc is nil it answers 200 with an empty body. Safe for concurrent use.
type MockTransport struct {
	DoFunc func(req *http.Request) (*http.Response, error)

	mu       sync.Mutex
	requests []RecordedRequest
}

// Do records the request and returns DoFunc's response.
func (m *MockTransport) Do(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body.Close()
		rec.Body = data
		req.Body = io.NopCloser(bytes.NewReader(data))
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	m.mu.Unlock()

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	return TextResponse(http.StatusOK, ""), nil
}

// Requests returns a copy of the recorded requests in arrival order.
func (m *MockTransport) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many requests the transport has seen.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// JSONResponse builds an *http.Response with a JSON content type.
func JSONResponse(status int, body string) *http.Response {
	resp := TextResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

// TextResponse builds an *http.Response with a plain text body.
func TextResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
