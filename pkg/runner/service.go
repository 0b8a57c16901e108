package runner

import "context"

// Service is a long-running component driven by a Runner, such as the cache janitor or
// the embedded NATS server behind "shopctl nats serve".
type Service interface {
	// Name identifies the service in runner logs and errors.
	Name() string

	// Start returns once the service is ready. Background work it launches must stop
	// when Stop is called, not when ctx ends: ctx only bounds startup.
	Start(ctx context.Context) error

	// Stop releases the service within ctx's deadline. It is called once, in reverse
	// start order, and only for services whose Start succeeded.
	Stop(ctx context.Context) error
}

// HealthChecker is implemented by services that can report readiness after Start.
// Runner.HealthCheck probes every service implementing it.
type HealthChecker interface {
	Service

	// HealthCheck returns an error while the service cannot serve requests.
	HealthCheck(ctx context.Context) error
}
