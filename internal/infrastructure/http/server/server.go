// Package server assembles the callback listener: the HTTP surface that
// receives the ministry's push notifications and answers operator queries
// while the outbound pipeline does its work.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"3tcapital/hacienda_client/internal/infrastructure/config"
	httperrors "3tcapital/hacienda_client/internal/infrastructure/http"
	"3tcapital/hacienda_client/internal/infrastructure/http/middleware"
)

// Server hosts the listener endpoints behind the shared middleware stack.
type Server struct {
	log             *slog.Logger
	httpServer      *http.Server
	auth            *middleware.JWTAuthenticator
	shutdownTimeout time.Duration
}

// Options configure the listener assembly. CallbackHandler and AuditHandler
// are optional; their routes answer 503 until the corresponding component is
// configured.
type Options struct {
	Config          config.AppConfig
	Logger          *slog.Logger
	HealthHandler   http.Handler
	CallbackHandler http.Handler
	AuditHandler    http.Handler
}

// New builds the router, the middleware chain, and the HTTP server around
// them.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.HealthHandler == nil {
		return nil, errors.New("health handler is required")
	}

	var auth *middleware.JWTAuthenticator
	if opts.Config.Auth.Enabled {
		var err error
		auth, err = middleware.NewJWTAuthenticator(opts.Config.Auth, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("jwt authenticator: %w", err)
		}
	}

	callbackHandler := opts.CallbackHandler
	if callbackHandler == nil {
		callbackHandler = unavailableHandler(opts.Logger, "Receptor de callbacks no configurado")
	}
	auditHandler := opts.AuditHandler
	if auditHandler == nil {
		auditHandler = unavailableHandler(opts.Logger, "Bitácora de auditoría no configurada")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(opts.Logger))
	if opts.Config.HTTP.WriteTimeout > 0 {
		r.Use(middleware.RequestTimeout(opts.Config.HTTP.WriteTimeout))
	}
	if auth != nil {
		r.Use(auth.Middleware)
	}

	r.Method(http.MethodGet, "/health", opts.HealthHandler)
	r.Method(http.MethodPost, "/callbacks/hacienda", callbackHandler)
	r.Method(http.MethodGet, "/audit/calls/{correlationID}", auditHandler)

	srv := &http.Server{
		Addr:         opts.Config.HTTP.Address(),
		Handler:      r,
		ReadTimeout:  opts.Config.HTTP.ReadTimeout,
		WriteTimeout: opts.Config.HTTP.WriteTimeout,
		IdleTimeout:  opts.Config.HTTP.IdleTimeout,
	}

	return &Server{
		log:             opts.Logger,
		httpServer:      srv,
		auth:            auth,
		shutdownTimeout: opts.Config.HTTP.ShutdownTimeout,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx := context.Background()
		if s.shutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
		}
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.log.Info("HTTP server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases background resources (the JWKS refresher).
func (s *Server) Close() {
	if s.auth != nil {
		s.auth.Close()
	}
}

func unavailableHandler(log *slog.Logger, detail string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Servicio temporalmente no disponible", []string{detail}, log)
	})
}
