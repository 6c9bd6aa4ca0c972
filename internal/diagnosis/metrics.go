package diagnosis

import "context"

// MetricsSummary represents aggregated diagnosis insights.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	RejectedRequests   int64   `json:"rejected_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AverageRiskScore   float64 `json:"average_risk_score"`
}

// GetMetricsSummary aggregates diagnosis metrics from persisted records.
func (o *Orchestrator) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := o.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:      aggregation.TotalCount,
		SuccessfulRequests: aggregation.SuccessCount,
		RejectedRequests:   aggregation.RejectedCount,
		AverageRiskScore:   aggregation.AverageScore,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
