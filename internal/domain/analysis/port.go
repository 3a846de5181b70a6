package analysis

import "context"

// Analyzer port (backend /analyze)
type Analyzer interface {
	Analyze(ctx context.Context, s Submission) (Analysis, error)
}

// ReportRenderer port (backend /generate-pdf)
type ReportRenderer interface {
	GeneratePDF(ctx context.Context, a Analysis) ([]byte, error)
}

// HealthChecker port (backend /health)
type HealthChecker interface {
	Check(ctx context.Context) error
}
