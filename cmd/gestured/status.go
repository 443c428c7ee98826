package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gestured/internal/health"
	"gestured/internal/keyhandler"
	"gestured/internal/metrics"
)

// statusServer serves /metrics, /healthz, /readyz and /health.
type statusServer struct {
	metrics *metrics.Gestured
	health  *health.Checker
	logger  *slog.Logger
}

func newStatusServer(logger *slog.Logger) *statusServer {
	return &statusServer{
		metrics: metrics.NewGestured(metrics.NewRegistry("gestured")),
		health:  health.NewChecker(),
		logger:  logger,
	}
}

// attach registers the handler-dependent metrics and checks.
func (s *statusServer) attach(h *keyhandler.Handler, store preferenceStore, gated bool, prefix string) {
	s.metrics.CollectStats(h.Stats)
	s.metrics.ProximityGate.SetBool(gated)

	s.health.RegisterFunc("handler", true, health.FuncCheck(func(context.Context) error {
		return h.Sync()
	}))
	s.health.RegisterFunc("input", true, func(context.Context) health.CheckResult {
		n := s.metrics.InputDevices.Value()
		if n == 0 {
			return health.Unhealthy("no input device is being read", nil)
		}
		return health.Healthy("reading", map[string]any{"devices": n})
	})
	s.health.RegisterFunc("preferences", true, health.FuncCheck(func(context.Context) error {
		_, _, err := store.GetString(prefix + "_probe")
		return err
	}))
	s.health.RegisterFunc("proximity", false, func(context.Context) health.CheckResult {
		if !gated {
			return health.CheckResult{Status: health.StatusDegraded, Message: "no proximity sensor, gestures are not gated"}
		}
		return health.Healthy("gating gestures", nil)
	})
}

func (s *statusServer) deviceStarted() {
	s.metrics.InputDevices.Inc()
}

func (s *statusServer) deviceStopped() {
	s.metrics.InputDevices.Dec()
}

func (s *statusServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Registry().HTTPHandler())
	mux.Handle("GET /healthz", s.health.LivenessHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())
	mux.Handle("GET /health", s.health.HealthHandler())
	return mux
}

// serve listens on addr until ctx is done.
func (s *statusServer) serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status endpoint listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
