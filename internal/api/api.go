// Package api provides the HTTP server for HealthCoach.
//
// It exposes the Twilio webhook, a JSON endpoint for driving a conversation directly,
// the archive of completed assessments, a health probe and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/HealthCoach/internal/models"
	"github.com/BTreeMap/HealthCoach/internal/telemetry"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultRateLimit is the per-IP request budget per minute for conversation endpoints.
	DefaultRateLimit = 60
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Conversation runs one inbound message and returns the replies without sending them.
// *messaging.ResponseHandler implements it.
type Conversation interface {
	Converse(ctx context.Context, response models.Response) ([]models.OutboundMessage, error)
}

// AssessmentLister reads archived assessments. store.Store implements it.
type AssessmentLister interface {
	GetAssessments(userID string) ([]models.Assessment, error)
}

// Opts holds optional server configuration.
type Opts struct {
	Addr          string
	RateLimit     int // requests per minute per IP; 0 disables limiting
	Metrics       *telemetry.Metrics
	TwilioWebhook http.HandlerFunc
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithRateLimit sets the per-IP limit in requests per minute.
func WithRateLimit(perMinute int) Option {
	return func(o *Opts) {
		o.RateLimit = perMinute
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Opts) {
		o.Metrics = m
	}
}

// WithTwilioWebhook mounts h on POST /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.TwilioWebhook = h
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	conversation Conversation
	assessments  AssessmentLister
	opts         Opts
	now          func() time.Time
}

// NewServer creates a server. Unset options take their defaults.
func NewServer(conversation Conversation, assessments AssessmentLister, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, RateLimit: DefaultRateLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("api.NewServer: configured", "addr", cfg.Addr, "rateLimit", cfg.RateLimit, "metrics", cfg.Metrics != nil, "twilioWebhook", cfg.TwilioWebhook != nil)
	return &Server{conversation: conversation, assessments: assessments, opts: cfg, now: time.Now}
}

// Router builds the chi router with all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/assessments", s.assessmentsHandler)

	r.Group(func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			r.Use(httprate.Limit(
				s.opts.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByRealIP),
				httprate.WithLimitHandler(rateLimitExceeded),
			))
		}
		r.Post("/messages", s.messagesHandler)
		if s.opts.TwilioWebhook != nil {
			r.Post("/webhook/twilio", s.opts.TwilioWebhook)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("api.Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("api.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	slog.Warn("api: rate limit exceeded", "remote", r.RemoteAddr, "path", r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}
