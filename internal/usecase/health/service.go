package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure. Transfers still work.
	Degraded Status = "degraded"
	// Unhealthy indicates the ledger is down and no transfer can be decided.
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

// Component names reported in Report.Checks.
const (
	ComponentDatabase  = "database"
	ComponentLedger    = "ledger"
	ComponentIndex     = "index"
	ComponentEmbedding = "embedding"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        Pinger
	ledger    Pinger
	index     Pinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(db, ledger, index Pinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, ledger: ledger, index: index, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		ComponentDatabase: result(s.db.Ping(ctx)),
		ComponentLedger:   result(s.ledger.Ping(ctx)),
		ComponentIndex:    result(s.index.Ping(ctx)),
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = result(s.embedding.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentLedger] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
