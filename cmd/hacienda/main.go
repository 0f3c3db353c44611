package main

import (
	auditpg "3tcapital/hacienda_client/internal/adapters/audit/postgres"
	"3tcapital/hacienda_client/internal/adapters/hacienda"
	audithttp "3tcapital/hacienda_client/internal/adapters/http/audit"
	callbackhttp "3tcapital/hacienda_client/internal/adapters/http/callback"
	healthhttp "3tcapital/hacienda_client/internal/adapters/http/health"
	profilefile "3tcapital/hacienda_client/internal/adapters/profile/file"
	apphealth "3tcapital/hacienda_client/internal/application/health"
	"3tcapital/hacienda_client/internal/application/submission"
	"3tcapital/hacienda_client/internal/core/audit"
	"3tcapital/hacienda_client/internal/core/document"
	"3tcapital/hacienda_client/internal/infrastructure/clock"
	"3tcapital/hacienda_client/internal/infrastructure/config"
	"3tcapital/hacienda_client/internal/infrastructure/database"
	infrahttp "3tcapital/hacienda_client/internal/infrastructure/http"
	"3tcapital/hacienda_client/internal/infrastructure/http/server"
	"3tcapital/hacienda_client/internal/infrastructure/logger"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "service stopped: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Name, cfg.Log.Level, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit trail database. The service stays useful without it, so a
	// connection failure downgrades auditing to structured logs only.
	var pool *pgxpool.Pool
	var auditRepo audit.Repository
	if cfg.Audit.Enabled {
		p, err := database.NewPool(ctx, database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			Database:        cfg.Database.Database,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Warn("Database unavailable, audit trail disabled",
				"error", err,
				"host", cfg.Database.Host,
				"database", cfg.Database.Database,
			)
		} else if err := database.RunMigrations(ctx, p, log); err != nil {
			p.Close()
			log.Warn("Database migrations failed, audit trail disabled", "error", err)
		} else {
			pool = p
			defer pool.Close()
			auditRepo = auditpg.NewRepositoryWithLogger(pool, log)
			log.Info("Audit trail enabled",
				"database", cfg.Database.Database,
				"max_body_size", cfg.Audit.MaxBodySize,
			)
		}
	} else {
		log.Info("Audit trail disabled in configuration")
	}

	clk := clock.System()
	auditEnabled := cfg.Audit.Enabled && auditRepo != nil

	// One traced transport per upstream so audit rows stay keyed by target.
	// Token exchanges carry credentials in their bodies, so the IDP transport
	// never logs bodies; sanitization still applies to what gets persisted.
	idpTransport := infrahttp.NewTracedClient(&infrahttp.TracedClientConfig{
		Timeout:      cfg.Hacienda.APITimeout,
		AuditEnabled: auditEnabled,
		MaxBodySize:  cfg.Audit.MaxBodySize,
	}, log, auditRepo, audit.TargetIDP)

	apiTransport := infrahttp.NewTracedClient(&infrahttp.TracedClientConfig{
		Timeout:         cfg.Hacienda.APITimeout,
		AuditEnabled:    auditEnabled,
		LogRequestBody:  cfg.Audit.LogRequestBody,
		LogResponseBody: cfg.Audit.LogResponseBody,
		MaxBodySize:     cfg.Audit.MaxBodySize,
	}, log, auditRepo, audit.TargetHacienda)

	tokens := hacienda.NewTokenManager(cfg.Hacienda.TokenURL, cfg.Hacienda.ClientID, idpTransport, clk, log)
	limiter := hacienda.NewRateLimiter(hacienda.RateLimiterOptions{
		MaxRequests: cfg.Hacienda.RateLimitRequests,
		Window:      cfg.Hacienda.RateLimitWindow,
	}, clk)
	retry := hacienda.NewRetryPolicy(hacienda.RetryOptions{
		MaxRetries:   cfg.Hacienda.MaxRetries,
		InitialDelay: cfg.Hacienda.RetryInitialDelay,
		Multiplier:   cfg.Hacienda.RetryMultiplier,
	}, clk, log)
	client := hacienda.NewClient(cfg.Hacienda.APIBaseURL, tokens, apiTransport, limiter, retry, log)
	orchestrator := hacienda.NewOrchestrator(client, clk, log)

	profiles, err := profilefile.NewStore(cfg.Submission.ProfilesPath)
	if err != nil {
		return fmt.Errorf("profile store: %w", err)
	}

	// Environment variables win; the stored profile covers the rest.
	creds := hacienda.Credentials{
		Username: cfg.Hacienda.Username,
		Password: cfg.Hacienda.Password,
	}
	if !cfg.Hacienda.HasCredentials() {
		if p, err := profiles.Load(ctx); err == nil && p.Username != "" {
			creds = hacienda.Credentials{Username: p.Username, Password: p.Password}
			log.Info("IDP credentials loaded from profile", "profile", p.Name, "username", p.Username)
		}
	}

	if creds.Username != "" && creds.Password != "" {
		if err := tokens.Authenticate(ctx, creds); err != nil {
			log.Warn("Initial IDP login failed, will retry on first use", "error", err)
		} else {
			log.Info("IDP session established", "environment", cfg.Hacienda.Environment)
		}
	} else {
		log.Warn("IDP credentials not configured, submissions will fail until a profile is saved")
	}

	// The batch layer drives the full submit-and-poll pipeline per document.
	pipeline := submission.PipelineFunc(func(ctx context.Context, req document.SubmissionRequest) (*document.SubmitAndWaitResult, error) {
		return orchestrator.SubmitAndWait(ctx, req, hacienda.SubmitAndWaitOptions{
			PollInterval: cfg.Hacienda.PollInterval,
			Timeout:      cfg.Hacienda.PollTimeout,
		})
	})
	submitter := submission.NewService(pipeline, submission.Config{
		WorkerPoolSize:          cfg.Submission.WorkerPoolSize,
		QueueSize:               cfg.Submission.QueueSize,
		BreakerFailureThreshold: cfg.Submission.BreakerFailureThreshold,
		BreakerResetTimeout:     cfg.Submission.BreakerResetTimeout,
		IsOutage:                hacienda.CountsAsOutage,
	}, clk, log)

	healthService := apphealth.NewService(apphealth.Metadata{
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	})
	if pool != nil {
		healthService.RegisterCheck("database", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	} else {
		healthService.RegisterCheck("database", nil)
	}
	healthService.RegisterCheck("submission_breaker", func(context.Context) error {
		if submitter.BreakerState() == submission.BreakerOpen {
			return errors.New("circuit breaker is open")
		}
		return nil
	})

	healthHandler := healthhttp.NewHandler(healthService)

	// Callbacks complement polling; the pipeline resolves documents on its
	// own, so the listener's job is to surface the verdict.
	callbackHandler := callbackhttp.NewHandler(func(ctx context.Context, status document.StatusResponse) {
		if status.Status() != document.StatusRechazado {
			return
		}
		decoded, err := status.DecodeRespuesta()
		if err != nil {
			log.Warn("Callback carried an unreadable respuesta-xml", "clave", status.Clave, "error", err)
			return
		}
		log.Warn("Document rejected by Hacienda",
			"clave", status.Clave,
			"reason", document.ExtractRejectionReason(decoded),
		)
	}, log)

	auditHandler := audithttp.NewHandler(auditRepo, log)

	srv, err := server.New(server.Options{
		Config:          cfg,
		Logger:          log,
		HealthHandler:   http.HandlerFunc(healthHandler.Status),
		CallbackHandler: http.HandlerFunc(callbackHandler.Receive),
		AuditHandler:    http.HandlerFunc(auditHandler.GetTrail),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	log.Info("Starting HTTP server", "port", cfg.HTTP.Port, "hacienda_env", cfg.Hacienda.Environment)
	return srv.Run(ctx)
}
