package health

import "context"

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks one embedding provider's availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
