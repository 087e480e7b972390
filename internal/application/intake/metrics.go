package intake

import "context"

// Metrics receives intake counters
type Metrics interface {
	RecordResolution(ctx context.Context, resolution string)
	RecordLotPosted(ctx context.Context)
}

// Resolution outcomes reported to Metrics
const (
	ResolutionMatched   = "matched"
	ResolutionUnmatched = "unmatched"
	ResolutionAmbiguous = "ambiguous"
)

type noopMetrics struct{}

func (noopMetrics) RecordResolution(context.Context, string) {}
func (noopMetrics) RecordLotPosted(context.Context)          {}

// WithMetrics sets the counters the service reports to
func (s *Service) WithMetrics(m Metrics) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}
