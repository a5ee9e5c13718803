// Package server exposes the webhook endpoint. The endpoint always answers
// 200 with a fixed body, so the platform never retries an update because of
// an internal failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nuclight.org/who-update-bot/app/updates"
	e "nuclight.org/who-update-bot/pkg/entities"
	"nuclight.org/who-update-bot/pkg/logger"
)

const (
	// Ack is the body of every webhook response.
	Ack = "Success"

	DefaultPath    = "/webhook_tg/"
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
	indexBody   = "who-update-bot"
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd updates.Update) (e.Outcome, error)
}

type Server struct {
	Log     logger.Logger
	Handler UpdateHandler

	// Path is the webhook path, DefaultPath when empty
	Path string

	// Timeout bounds the handling of one update, DefaultTimeout when zero
	Timeout time.Duration

	// Registry collects metrics, a private registry is created when nil
	Registry *prometheus.Registry

	once    sync.Once
	mux     *http.ServeMux
	metrics *metrics
}

// Routes returns the HTTP handler serving the webhook, the index page and metrics.
func (s *Server) Routes() http.Handler {
	s.once.Do(s.init)
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("http server started", "addr", addr, "webhook_path", s.path())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	if err = <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}

	s.Log.Info("http server stopped")

	return nil
}

func (s *Server) init() {
	if s.Registry == nil {
		s.Registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.Registry)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc(s.path(), s.handleWebhook)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(indexBody))
	})
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
}

func (s *Server) path() string {
	if s.Path == "" {
		return DefaultPath
	}
	return s.Path
}

func (s *Server) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	log := s.Log.With("request_id", requestID)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", requestID)
	})

	defer func() {
		if err := recover(); err != nil {
			log.Error("panic", "error", err)
			s.metrics.errors.WithLabelValues("panic").Inc()
			hub.Recover(err)
		}
		s.metrics.duration.Observe(time.Since(start).Seconds())
		ack(w)
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		log.Warn("reading body", "error", err)
		s.metrics.errors.WithLabelValues("read").Inc()
		return
	}

	upd, err := updates.Parse(body)
	if err != nil {
		log.Warn("bad update payload", "error", err)
		s.metrics.errors.WithLabelValues("parse").Inc()
		return
	}

	log = log.With("tg_update_id", upd.ID, "kind", upd.Kind, "origin", upd.Origin)
	s.metrics.updates.WithLabelValues(string(upd.Kind), string(upd.Origin)).Inc()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("update_kind", string(upd.Kind))
	})

	// the update is handled even if the platform drops the connection
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout())
	defer cancel()

	outcome, err := s.Handler.HandleUpdate(ctx, upd)
	if err != nil {
		log.Error("handling update", "error", err, "outcome", outcome.Kind)
		s.metrics.errors.WithLabelValues("handle").Inc()
		hub.CaptureException(err)
	}

	s.metrics.outcomes.WithLabelValues(string(outcome.Kind)).Inc()
	log.Info("update handled", "outcome", outcome.Kind, "note", outcome.Note)
}

func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, Ack)
}
