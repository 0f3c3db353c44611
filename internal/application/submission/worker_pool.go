package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"3tcapital/hacienda_client/internal/core/document"
)

// Pipeline runs one document through submission and status polling until a
// terminal state. The composition root binds poll options when adapting the
// orchestrator to this interface.
type Pipeline interface {
	SubmitAndWait(ctx context.Context, req document.SubmissionRequest) (*document.SubmitAndWaitResult, error)
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context, req document.SubmissionRequest) (*document.SubmitAndWaitResult, error)

func (f PipelineFunc) SubmitAndWait(ctx context.Context, req document.SubmissionRequest) (*document.SubmitAndWaitResult, error) {
	return f(ctx, req)
}

// Job represents one document queued for submission.
type Job struct {
	Request document.SubmissionRequest
	Index   int
}

// DocumentOutcome is the terminal outcome of one document in a batch.
// Result is nil when Err is set.
type DocumentOutcome struct {
	Index  int
	Clave  string
	Result *document.SubmitAndWaitResult
	Err    error
}

// Accepted reports whether the ministry accepted the document.
func (o DocumentOutcome) Accepted() bool {
	return o.Err == nil && o.Result != nil && o.Result.Accepted
}

// WorkerPool manages concurrent submission of documents over one shared
// pipeline. Every worker call goes through the circuit breaker, so an API
// outage fails the remaining jobs fast instead of timing each one out.
type WorkerPool struct {
	workerCount int
	jobChan     chan Job
	resultChan  chan DocumentOutcome
	pipeline    Pipeline
	breaker     *CircuitBreaker
	isOutage    func(error) bool
	log         *slog.Logger
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWorkerPool creates a worker pool for batch submission.
// isOutage decides which pipeline errors count against the circuit breaker;
// nil counts every error.
func NewWorkerPool(ctx context.Context, workerCount, queueSize int, pipeline Pipeline, breaker *CircuitBreaker, isOutage func(error) bool, log *slog.Logger) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)

	if workerCount <= 0 {
		workerCount = 5
	}
	if queueSize <= 0 {
		queueSize = workerCount * 2
	}
	if isOutage == nil {
		isOutage = func(err error) bool { return err != nil }
	}

	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan Job, queueSize),
		resultChan:  make(chan DocumentOutcome, workerCount*2),
		pipeline:    pipeline,
		breaker:     breaker,
		isOutage:    isOutage,
		log:         log,
		ctx:         poolCtx,
		cancel:      cancel,
	}
}

// Start starts the worker pool with the configured number of workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops the worker pool. Callers must not Submit after calling Stop.
func (p *WorkerPool) Stop() {
	close(p.jobChan)
	p.cancel()
	p.wg.Wait()
	close(p.resultChan)
}

// Submit queues a job for processing.
func (p *WorkerPool) Submit(job Job) error {
	select {
	case p.jobChan <- job:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Results returns the channel outcomes arrive on.
func (p *WorkerPool) Results() <-chan DocumentOutcome {
	return p.resultChan
}

// worker processes jobs from the job channel.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobChan {
		outcome := p.process(id, job)

		select {
		case p.resultChan <- outcome:
		case <-p.ctx.Done():
			return
		}
	}
}

// process runs a single document through the pipeline behind the breaker.
func (p *WorkerPool) process(workerID int, job Job) DocumentOutcome {
	outcome := DocumentOutcome{Index: job.Index, Clave: job.Request.Clave}

	// Reject malformed claves locally so they never reach the API or the
	// breaker's failure count.
	if !document.IsValidClave(job.Request.Clave) {
		outcome.Err = fmt.Errorf("invalid clave %q: must be 50 digits", job.Request.Clave)
		return outcome
	}

	p.log.Debug("Worker processing document",
		"worker", workerID,
		"clave", job.Request.Clave,
		"index", job.Index)

	var result *document.SubmitAndWaitResult
	var callErr error
	breakerErr := p.breaker.Execute(func() error {
		result, callErr = p.pipeline.SubmitAndWait(p.ctx, job.Request)
		if p.isOutage(callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(breakerErr, ErrBreakerOpen) {
		p.log.Warn("Document failed fast", "clave", job.Request.Clave, "breaker", p.breaker.State().String())
		outcome.Err = fmt.Errorf("document %s not submitted: %w", job.Request.Clave, ErrBreakerOpen)
		return outcome
	}

	outcome.Result = result
	outcome.Err = callErr
	return outcome
}
