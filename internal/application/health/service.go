package health

import (
	"context"
	"sync"
	"time"

	corehealth "3tcapital/hacienda_client/internal/core/health"
)

// Metadata contains immutable metadata about the running service.
type Metadata struct {
	Service     string
	Version     string
	Environment string
}

// CheckFunc probes one dependency. A nil error means the dependency is up.
type CheckFunc func(ctx context.Context) error

// Service exposes health-check use cases to adapters. Dependency checks
// (database, IDP session) are registered by the binary at wiring time.
type Service struct {
	meta      Metadata
	startedAt time.Time

	mu     sync.Mutex
	checks map[string]CheckFunc
}

func NewService(meta Metadata) *Service {
	return &Service{
		meta:      meta,
		startedAt: time.Now().UTC(),
		checks:    make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a named dependency probe. A nil fn records the
// dependency as disabled, which keeps it visible in the report without
// counting against overall health.
func (s *Service) RegisterCheck(name string, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = fn
}

// Status returns the current availability snapshot. Overall status degrades
// when any registered check fails; disabled checks never degrade it.
func (s *Service) Status(ctx context.Context) corehealth.Status {
	uptime := time.Since(s.startedAt)

	status := corehealth.Status{
		Service:     s.meta.Service,
		Version:     s.meta.Version,
		Environment: s.meta.Environment,
		Status:      "UP",
		StartedAt:   s.startedAt,
		Uptime:      uptime.String(),
		UptimeSecs:  int64(uptime.Seconds()),
	}

	s.mu.Lock()
	checks := make(map[string]CheckFunc, len(s.checks))
	for name, fn := range s.checks {
		checks[name] = fn
	}
	s.mu.Unlock()

	if len(checks) == 0 {
		return status
	}

	status.Checks = make(map[string]string, len(checks))
	for name, fn := range checks {
		if fn == nil {
			status.Checks[name] = corehealth.CheckDisabled
			continue
		}
		if err := fn(ctx); err != nil {
			status.Checks[name] = corehealth.CheckDown
			status.Status = "DEGRADED"
			continue
		}
		status.Checks[name] = corehealth.CheckUp
	}

	return status
}
