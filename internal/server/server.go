// Package server exposes the voice websocket channel and the TTS job API
// over a single HTTP listener.
//
// The voice endpoint speaks the bidirectional JSON protocol of the session
// pipeline; the TTS endpoints drive the asynchronous synthesis job manager.
// Liveness, readiness, and Prometheus metrics live on the same mux.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triamed/voicefront/internal/config"
	"github.com/triamed/voicefront/internal/health"
	"github.com/triamed/voicefront/internal/observe"
	"github.com/triamed/voicefront/internal/session"
	"github.com/triamed/voicefront/internal/ttsjob"
	"github.com/triamed/voicefront/pkg/audio"
)

// shutdownTimeout bounds the graceful drain when Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// Deps bundles the subsystems the server serves. Providers drive voice
// sessions; Jobs drives the TTS API.
type Deps struct {
	Providers session.Providers
	Jobs      *ttsjob.Manager

	// Dumper persists audit WAVs for sessions. Nil disables dumping.
	Dumper *audio.Dumper

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// Checkers are added to the readiness probe.
	Checkers []health.Checker
}

// Server owns the HTTP listener and the per-connection session lifecycle.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	deps    Deps
	sessCfg session.Config
	health  *health.Handler
	metrics *observe.Metrics
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New wires a Server from the application config.
func New(cfg *config.Config, deps Deps, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		log:     slog.Default(),
		deps:    deps,
		health:  health.New(deps.Checkers...),
		metrics: deps.Metrics,
		sessCfg: session.Config{
			SilenceSeconds:     cfg.Pipeline.SilenceSeconds,
			KWSWindowSeconds:   cfg.Pipeline.KWSWindowSeconds,
			PreSpeechSeconds:   cfg.Pipeline.PreSpeechSeconds,
			MinEnrollSeconds:   cfg.Pipeline.MinEnrollSeconds,
			VADEnergyThreshold: cfg.Pipeline.VADEnergyThreshold,
			VADPeakThreshold:   cfg.Pipeline.VADPeakThreshold,
			VADPolicy:          session.VADPolicy(cfg.Pipeline.VADPolicy),
			SVThreshold:        cfg.Pipeline.SVThreshold,
			WorkDir:            cfg.Pipeline.WorkDir,
			UseWake:            true,
			RequireWake:        cfg.Pipeline.RequireWake,
			UseSV:              true,
			DisableLLM:         cfg.Pipeline.DisableLLM,
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler builds the full route table wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/voice/ws", s.handleVoice)

	mux.HandleFunc("POST /start", s.handleTTSStart)
	mux.HandleFunc("POST /cancel", s.handleTTSCancel)
	mux.HandleFunc("GET /result/{job_id}", s.handleTTSResult)
	mux.HandleFunc("DELETE /jobs/{job_id}", s.handleTTSCleanup)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then drains connections gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.Server.ListenAddr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := s.cfg.Server.TLS; tls != nil {
			s.log.Info("listening with TLS", "addr", srv.Addr)
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			s.log.Info("listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
