// Package natsutil runs an embedded NATS server with JetStream, used by the NATS cache
// backend in tests and by the CLI when no external server is configured.
package natsutil

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServer wraps an in-process NATS server.
type EmbeddedServer struct {
	server       *server.Server
	shutdownOnce sync.Once
	logger       *slog.Logger
}

type serverConfig struct {
	host     string
	port     int
	storeDir string
	logger   *slog.Logger
}

// Option configures StartEmbeddedServer.
type Option func(*serverConfig)

// WithHost sets the listen host. Default is 127.0.0.1.
func WithHost(host string) Option {
	return func(c *serverConfig) {
		c.host = host
	}
}

// WithPort sets the client port. Default -1 picks a random free port.
func WithPort(port int) Option {
	return func(c *serverConfig) {
		c.port = port
	}
}

// WithStoreDir sets the JetStream storage directory. Empty uses a temp directory.
func WithStoreDir(dir string) Option {
	return func(c *serverConfig) {
		c.storeDir = dir
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// StartEmbeddedServer starts a NATS server with JetStream enabled and waits until it
// accepts connections.
func StartEmbeddedServer(opts ...Option) (*EmbeddedServer, error) {
	cfg := serverConfig{
		host:   "127.0.0.1",
		port:   -1,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := server.NewServer(&server.Options{
		Host:      cfg.host,
		Port:      cfg.port,
		JetStream: true,
		StoreDir:  cfg.storeDir,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedServer{server: s, logger: cfg.logger}, nil
}

// URL returns the client connection URL.
func (e *EmbeddedServer) URL() string {
	return e.server.ClientURL()
}

// Connect opens a client connection to the server.
func (e *EmbeddedServer) Connect(opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(e.URL(), opts...)
}

// Shutdown stops the server, waiting at most five seconds. Safe to call repeatedly.
func (e *EmbeddedServer) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			e.logger.Warn("embedded NATS shutdown timed out", "timeout", 5*time.Second)
		}
	})
}
