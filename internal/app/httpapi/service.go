package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/replicante-io/replicore/internal/app/system"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/pkg/logger"
)

var _ system.Service = (*Service)(nil)

// Service runs the REST API (spec.md §6) as a lifecycle-managed
// system.Service, following the same Start/Stop-over-http.Server shape as
// the teacher's marble HTTP runner, trimmed to what this module's own
// process manager needs (no TLS/marble/chain setup, just listen-and-serve
// plus graceful shutdown).
type Service struct {
	Addr string
	Log  *logger.Logger

	server      *http.Server
	rateLimiter *rateLimiter
	stopCleanup func()
}

// NewService builds the REST API Service bound to inj. requestsPerSecond <=
// 0 disables rate limiting entirely. The returned value must be Start-ed
// before it serves requests.
func NewService(inj injector.Injector, addr string, tokens []string, log *logger.Logger, requestsPerSecond float64, burst int) *Service {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	audit := newAuditLog(200, nil)
	var rl *rateLimiter
	if requestsPerSecond > 0 {
		rl = newRateLimiter(requestsPerSecond, burst)
	}
	handler := NewHandler(inj, tokens, audit, rl)
	return &Service{
		Addr:        addr,
		rateLimiter: rl,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    maxBodyBytes,
		},
		Log: log,
	}
}

func (s *Service) Name() string { return "httpapi" }

// Start begins serving in a background goroutine; listen errors other than
// a clean shutdown are logged since Start itself must return immediately.
func (s *Service) Start(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.stopCleanup = s.rateLimiter.startCleanup(10 * time.Minute)
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.WithError(err).Error("httpapi: server exited")
		}
	}()
	s.Log.WithField("addr", s.Addr).Info("httpapi: listening")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	return s.server.Shutdown(ctx)
}
