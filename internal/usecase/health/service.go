package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an embedding provider is down; search still works
	// from cache and the remaining providers.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedders map[string]EmbeddingChecker
}

// New creates a Service. embedders maps provider name to its checker and
// may be empty.
func New(db DBPinger, embedders map[string]EmbeddingChecker) *Service {
	return &Service{db: db, embedders: embedders}
}

// Check runs health checks against the database and every embedding
// provider.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	dbOK := true
	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		dbOK = false
	} else {
		checks["database"] = CheckOK
	}

	providersOK := true
	for _, name := range providerNames(s.embedders) {
		if err := s.embedders[name].HealthCheck(ctx); err != nil {
			checks["embedding:"+name] = CheckError
			providersOK = false
		} else {
			checks["embedding:"+name] = CheckOK
		}
	}

	status := Healthy
	switch {
	case !dbOK:
		status = Unhealthy
	case !providersOK:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func providerNames(embedders map[string]EmbeddingChecker) []string {
	names := make([]string, 0, len(embedders))
	for name := range embedders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
