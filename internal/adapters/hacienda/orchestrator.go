package hacienda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"3tcapital/hacienda_client/internal/core/document"
	"3tcapital/hacienda_client/internal/infrastructure/clock"
)

const (
	recepcionPath = "/recepcion"

	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 80 * time.Second

	// The first poll never waits longer than this, whatever the configured
	// interval; small documents often resolve within a second.
	maxFirstPollDelay = time.Second
)

// SubmitAndWaitOptions configure a single submit-and-wait run.
type SubmitAndWaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// OnPoll observes progress after every poll that returned a status,
	// before terminal-state evaluation. Attempts are 1-based.
	OnPoll func(status document.Status, attempt int)
}

// Orchestrator drives a submission through the ministry's asynchronous
// pipeline: one POST to the reception endpoint, then status polls until a
// terminal state or the deadline.
type Orchestrator struct {
	client *Client
	clock  clock.Clock
	log    *slog.Logger
}

// NewOrchestrator creates an orchestrator on top of an API client.
func NewOrchestrator(client *Client, clk clock.Clock, log *slog.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.System()
	}
	return &Orchestrator{client: client, clock: clk, log: log}
}

// Submit posts a document to the reception endpoint without polling. The
// returned response carries the ministry's 201/202 and Location header.
func (o *Orchestrator) Submit(ctx context.Context, req document.SubmissionRequest) (*Response, error) {
	resp, err := o.client.Post(ctx, recepcionPath, req, RequestOptions{})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			o.log.Warn("Submission rejected as duplicate", "clave", req.Clave)
			return nil, fmt.Errorf("%w: document with clave %s was already received: %w",
				ErrDuplicateSubmission, req.Clave, err)
		}
		return nil, fmt.Errorf("submit document %s: %w", req.Clave, err)
	}
	o.log.Info("Document submitted",
		"clave", req.Clave,
		"status", resp.StatusCode,
		"location", resp.Header.Get("Location"),
	)
	return resp, nil
}

// GetStatus fetches the current processing state of a submitted document.
func (o *Orchestrator) GetStatus(ctx context.Context, clave string) (document.StatusResponse, error) {
	status, found, err := o.poll(ctx, clave)
	if err != nil {
		return document.StatusResponse{}, err
	}
	if !found {
		return document.StatusResponse{}, fmt.Errorf("document %s not found", clave)
	}
	return status, nil
}

// SubmitAndWait submits a document and polls its status until the ministry
// reports a terminal state. A 409 on submission surfaces as a
// duplicate-submission error without any polling; a 404 while polling means
// the document is not yet indexed and polling continues.
func (o *Orchestrator) SubmitAndWait(ctx context.Context, req document.SubmissionRequest, opts SubmitAndWaitOptions) (*document.SubmitAndWaitResult, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPollTimeout
	}

	submitResp, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	start := o.clock.Now()
	wait := opts.PollInterval
	if wait > maxFirstPollDelay {
		wait = maxFirstPollDelay
	}

	attempts := 0
	for {
		// The deadline is checked before each wait so a poll in flight is
		// never cut off mid-call.
		elapsed := o.clock.Now().Sub(start)
		if elapsed >= opts.Timeout {
			o.log.Warn("Timed out waiting for terminal status",
				"clave", req.Clave,
				"attempts", attempts,
				"elapsed", elapsed,
			)
			return nil, &PollTimeoutError{Clave: req.Clave, Attempts: attempts, Elapsed: elapsed}
		}

		if err := o.clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait = opts.PollInterval

		attempts++
		status, found, err := o.poll(ctx, req.Clave)
		if err != nil {
			return nil, fmt.Errorf("poll document %s: %w", req.Clave, err)
		}
		if !found {
			o.log.Debug("Document not yet indexed", "clave", req.Clave, "attempt", attempts)
			continue
		}

		st := status.Status()
		if opts.OnPoll != nil {
			opts.OnPoll(st, attempts)
		}
		o.log.Debug("Poll result", "clave", req.Clave, "attempt", attempts, "status", st)

		if !st.IsTerminal() {
			continue
		}
		return o.buildResult(req.Clave, status, submitResp, attempts)
	}
}

// poll fetches the document status once. A 404 reports found=false; every
// other failure is an error.
func (o *Orchestrator) poll(ctx context.Context, clave string) (document.StatusResponse, bool, error) {
	resp, err := o.client.Get(ctx, recepcionPath+"/"+clave, RequestOptions{})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return document.StatusResponse{}, false, nil
		}
		return document.StatusResponse{}, false, err
	}

	var status document.StatusResponse
	if err := resp.Decode(&status); err != nil {
		return document.StatusResponse{}, false, fmt.Errorf("decode status response: %w", err)
	}
	return status, true, nil
}

func (o *Orchestrator) buildResult(clave string, status document.StatusResponse, submitResp *Response, attempts int) (*document.SubmitAndWaitResult, error) {
	decoded, err := status.DecodeRespuesta()
	if err != nil {
		// A terminal state with an undecodable payload is still terminal;
		// keep the outcome and log the payload problem.
		o.log.Warn("Could not decode respuesta-xml", "clave", clave, "error", err)
		decoded = ""
	}

	final := status.Status()
	result := &document.SubmitAndWaitResult{
		Accepted:         final == document.StatusAceptado,
		FinalStatus:      final,
		ResponseDate:     status.Fecha,
		DecodedResponse:  decoded,
		SubmitStatusCode: submitResp.StatusCode,
		PollAttempts:     attempts,
		Location:         submitResp.Header.Get("Location"),
	}
	if final == document.StatusRechazado || final == document.StatusError {
		result.RejectionReason = document.ExtractRejectionReason(decoded)
	}

	o.log.Info("Document reached terminal status",
		"clave", clave,
		"status", final,
		"accepted", result.Accepted,
		"attempts", attempts,
	)
	return result, nil
}
