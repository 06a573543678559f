package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all configured components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckUnconfigured indicates a component with no credentials; this
	// never degrades the aggregate status.
	CheckUnconfigured CheckResult = "unconfigured"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks. Any collaborator may be nil.
type Service struct {
	index       IndexPinger
	embedding   EmbeddingChecker
	expander    bool
	cms         CMSPinger
	contentType string
}

// New creates a health service. expanderConfigured reflects whether the
// query expander has credentials; it has no pingable endpoint of its own.
func New(index IndexPinger, embedding EmbeddingChecker, expanderConfigured bool, cms CMSPinger, contentType string) *Service {
	return &Service{
		index:       index,
		embedding:   embedding,
		expander:    expanderConfigured,
		cms:         cms,
		contentType: contentType,
	}
}

// Check runs health checks against all components. It always answers;
// unconfigured components are reported, not treated as failures.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.index == nil {
		checks["index"] = CheckUnconfigured
	} else if err := s.index.Ping(ctx); err != nil {
		checks["index"] = CheckError
	} else {
		checks["index"] = CheckOK
	}

	if s.embedding == nil {
		checks["embedding"] = CheckUnconfigured
	} else if err := s.embedding.HealthCheck(ctx); err != nil {
		checks["embedding"] = CheckError
	} else {
		checks["embedding"] = CheckOK
	}

	if s.expander {
		checks["expander"] = CheckOK
	} else {
		checks["expander"] = CheckUnconfigured
	}

	if s.cms == nil {
		checks["cms"] = CheckUnconfigured
	} else if err := s.cms.Ping(ctx, s.contentType); err != nil {
		checks["cms"] = CheckError
	} else {
		checks["cms"] = CheckOK
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
