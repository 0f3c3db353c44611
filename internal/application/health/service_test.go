package health

import (
	"context"
	"errors"
	"testing"
	"time"

	corehealth "3tcapital/hacienda_client/internal/core/health"
)

func TestNewService(t *testing.T) {
	meta := Metadata{
		Service:     "test-service",
		Version:     "1.0.0",
		Environment: "test",
	}

	service := NewService(meta)

	if service == nil {
		t.Fatal("expected service to be created, got nil")
	}

	if service.meta != meta {
		t.Error("expected service to have the provided metadata")
	}

	if service.startedAt.IsZero() {
		t.Error("expected startedAt to be set")
	}
}

func TestService_Status(t *testing.T) {
	meta := Metadata{
		Service:     "test-service",
		Version:     "1.0.0",
		Environment: "test",
	}

	service := NewService(meta)
	startTime := service.startedAt

	time.Sleep(10 * time.Millisecond)

	ctx := context.Background()
	status := service.Status(ctx)

	if status.Service != meta.Service {
		t.Errorf("expected service %q, got %q", meta.Service, status.Service)
	}

	if status.Version != meta.Version {
		t.Errorf("expected version %q, got %q", meta.Version, status.Version)
	}

	if status.Environment != meta.Environment {
		t.Errorf("expected environment %q, got %q", meta.Environment, status.Environment)
	}

	if status.Status != "UP" {
		t.Errorf("expected status 'UP', got %q", status.Status)
	}

	if !status.StartedAt.Equal(startTime) {
		t.Errorf("expected startedAt to match service start time")
	}

	if status.UptimeSecs < 0 {
		t.Errorf("expected uptimeSecs to be non-negative, got %d", status.UptimeSecs)
	}

	if status.Uptime == "" {
		t.Error("expected uptime to be set")
	}

	if status.Checks != nil {
		t.Errorf("expected no checks when none registered, got %v", status.Checks)
	}
}

func TestService_Status_ChecksUp(t *testing.T) {
	service := NewService(Metadata{Service: "test", Version: "1.0.0", Environment: "test"})
	service.RegisterCheck("database", func(ctx context.Context) error { return nil })
	service.RegisterCheck("idp_session", func(ctx context.Context) error { return nil })

	status := service.Status(context.Background())

	if status.Status != "UP" {
		t.Errorf("expected status 'UP', got %q", status.Status)
	}
	if status.Checks["database"] != corehealth.CheckUp {
		t.Errorf("expected database check up, got %q", status.Checks["database"])
	}
	if status.Checks["idp_session"] != corehealth.CheckUp {
		t.Errorf("expected idp_session check up, got %q", status.Checks["idp_session"])
	}
}

func TestService_Status_FailingCheckDegrades(t *testing.T) {
	service := NewService(Metadata{Service: "test", Version: "1.0.0", Environment: "test"})
	service.RegisterCheck("database", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	service.RegisterCheck("idp_session", func(ctx context.Context) error { return nil })

	status := service.Status(context.Background())

	if status.Status != "DEGRADED" {
		t.Errorf("expected status 'DEGRADED', got %q", status.Status)
	}
	if status.Checks["database"] != corehealth.CheckDown {
		t.Errorf("expected database check down, got %q", status.Checks["database"])
	}
	if status.Checks["idp_session"] != corehealth.CheckUp {
		t.Errorf("expected idp_session check up, got %q", status.Checks["idp_session"])
	}
}

func TestService_Status_DisabledCheckDoesNotDegrade(t *testing.T) {
	service := NewService(Metadata{Service: "test", Version: "1.0.0", Environment: "test"})
	service.RegisterCheck("database", nil)

	status := service.Status(context.Background())

	if status.Status != "UP" {
		t.Errorf("expected status 'UP', got %q", status.Status)
	}
	if status.Checks["database"] != corehealth.CheckDisabled {
		t.Errorf("expected database check disabled, got %q", status.Checks["database"])
	}
}

func TestService_Status_UptimeCalculation(t *testing.T) {
	meta := Metadata{
		Service:     "test",
		Version:     "1.0.0",
		Environment: "test",
	}

	service := NewService(meta)
	time.Sleep(100 * time.Millisecond)

	status := service.Status(context.Background())

	if status.UptimeSecs < 0 {
		t.Errorf("expected uptimeSecs >= 0, got %d", status.UptimeSecs)
	}

	if status.Uptime == "" {
		t.Error("expected uptime string to be non-empty")
	}
}
