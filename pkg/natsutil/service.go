package natsutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plaenen/shopcore/pkg/runner"
)

// Service runs an EmbeddedServer under a runner.Runner.
type Service struct {
	opts   []Option
	logger *slog.Logger
	server *EmbeddedServer
}

// NewService creates a service starting a server with opts.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:   append([]Option{WithLogger(logger)}, opts...),
		logger: logger,
	}
}

// Name implements runner.Service.
func (s *Service) Name() string {
	return "embedded-nats"
}

// Start implements runner.Service.
func (s *Service) Start(ctx context.Context) error {
	srv, err := StartEmbeddedServer(s.opts...)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	s.server = srv
	s.logger.Info("embedded NATS server started", "url", srv.URL())
	return nil
}

// Stop implements runner.Service.
func (s *Service) Stop(ctx context.Context) error {
	if s.server != nil {
		s.server.Shutdown()
	}
	return nil
}

// HealthCheck implements runner.HealthChecker by opening a client connection.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.server == nil {
		return fmt.Errorf("nats server not started")
	}
	nc, err := s.server.Connect()
	if err != nil {
		return fmt.Errorf("nats server not responsive: %w", err)
	}
	nc.Close()
	return nil
}

// URL returns the server URL once started.
func (s *Service) URL() string {
	if s.server == nil {
		return ""
	}
	return s.server.URL()
}

var _ runner.HealthChecker = (*Service)(nil)
