// Package submission runs batches of signed documents through the ministry's
// asynchronous reception pipeline: a bounded worker pool drives one
// submit-and-wait flow per document over the shared token, rate-limit, and
// retry stack, with a circuit breaker that fails the remainder fast when the
// API stops answering.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"3tcapital/hacienda_client/internal/core/document"
	"3tcapital/hacienda_client/internal/infrastructure/clock"
)

// Config tunes the batch pipeline.
type Config struct {
	WorkerPoolSize          int
	QueueSize               int
	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration
	// IsOutage decides whether a pipeline error counts against the circuit
	// breaker. nil counts every error.
	IsOutage func(error) bool
}

// BatchReport carries the per-document outcomes and the aggregate statistics
// of one batch run.
type BatchReport struct {
	Outcomes []DocumentOutcome
	Stats    BatchStats
}

// Service runs batches of documents through submit-and-wait concurrently.
// The circuit breaker is shared across batches, so an outage detected by one
// batch carries over to the next.
type Service struct {
	pipeline Pipeline
	cfg      Config
	breaker  *CircuitBreaker
	log      *slog.Logger
}

// NewService creates a batch submission service. A nil clock uses the runtime
// clock for the breaker's reset timing.
func NewService(pipeline Pipeline, cfg Config, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		pipeline: pipeline,
		cfg:      cfg,
		breaker:  NewCircuitBreaker(cfg.BreakerFailureThreshold, cfg.BreakerResetTimeout, clk),
		log:      log,
	}
}

// BreakerState exposes the shared breaker state for health reporting.
func (s *Service) BreakerState() BreakerState {
	return s.breaker.State()
}

// SubmitBatch runs every document through submit-and-wait over a bounded
// worker pool. The report always carries one outcome per document; documents
// the pool never finished because the context ended fail with the context
// error.
func (s *Service) SubmitBatch(ctx context.Context, docs []document.SubmissionRequest) (*BatchReport, error) {
	if len(docs) == 0 {
		return nil, errors.New("batch contains no documents")
	}

	s.log.Info("Batch submission started",
		"documents", len(docs),
		"workers", s.cfg.WorkerPoolSize)

	aggregator := NewResultAggregator(len(docs))
	pool := NewWorkerPool(ctx, s.cfg.WorkerPoolSize, s.cfg.QueueSize, s.pipeline, s.breaker, s.cfg.IsOutage, s.log)
	pool.Start()

	submitDone := make(chan struct{})
	go func() {
		defer close(submitDone)
		for i, doc := range docs {
			if err := pool.Submit(Job{Request: doc, Index: i}); err != nil {
				// Context ended; the collector fills in the missing outcomes.
				return
			}
		}
	}()

	received := make([]bool, len(docs))
	collected := 0
collect:
	for collected < len(docs) {
		select {
		case outcome := <-pool.Results():
			aggregator.Add(outcome)
			received[outcome.Index] = true
			collected++
		case <-ctx.Done():
			break collect
		}
	}

	// Submit always returns once the context ends, so this cannot hang, and
	// the pool must not close its job channel while a Submit is in flight.
	<-submitDone
	pool.Stop()

	if collected < len(docs) {
		for i := range received {
			if !received[i] {
				aggregator.Add(DocumentOutcome{Index: i, Clave: docs[i].Clave, Err: ctx.Err()})
			}
		}
	}

	stats := aggregator.Stats()
	s.log.Info("Batch submission completed",
		"total", stats.Total,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
		"duration", stats.Duration,
		"throughput", stats.Throughput)

	return &BatchReport{Outcomes: aggregator.Outcomes(), Stats: stats}, nil
}
