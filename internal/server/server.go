package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/idiotech/kafka-connect-jdbc/internal/api"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server serves the health and readiness probes of the sink.
type Server struct {
	*http.Server
	log *slog.Logger
}

// NewHTTPServer reports ready while target answers Ping.
func NewHTTPServer(cfg Config, target api.Pinger, log *slog.Logger) *Server {
	//nolint: exhaustruct // optional server config
	return &Server{
		Server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.NewRouter(log, target),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info("Probe server listening", slog.String("addr", s.Addr))

	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}

	return nil
}

// Shutdown waits up to timeout for open probe requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	return nil
}
