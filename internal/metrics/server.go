package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"quizqa/internal/logging"
)

// Server exposes /metrics and /healthz over HTTP while a run is active.
type Server struct {
	server   *http.Server
	listener net.Listener
}

// Serve starts a server for m on addr. Use port 0 to pick a free port.
func Serve(addr string, m *Metrics, logger *slog.Logger) (*Server, error) {
	logger = logging.NewComponentLogger(logger, "metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logging.WarnWithContext(logger, "metrics server stopped", "metrics_server_stopped",
				logging.Error(serveErr),
				logging.String(logging.FieldErrorHint, "check metrics.bind"),
				logging.String(logging.FieldImpact, "metrics are no longer scraped; evaluation continues"))
		}
	}()
	logger.Info("metrics endpoint listening", logging.String("addr", listener.Addr().String()))
	return &Server{server: srv, listener: listener}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server.
func (s *Server) Close(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
