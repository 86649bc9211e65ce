package dto

import (
	"time"

	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
)

// RecalculateRequest triggers a recalculation run. An empty period list
// means every supported period.
type RecalculateRequest struct {
	Periods []string `json:"periods"`
}

// RunResponse is the wire form of one run ledger entry.
type RunResponse struct {
	ID                string     `json:"id"`
	RunDate           time.Time  `json:"run_date"`
	Periods           []string   `json:"periods"`
	Status            string     `json:"status"`
	TenantsProcessed  int        `json:"tenants_processed"`
	TotalTenants      int        `json:"total_tenants"`
	MetricsCalculated int        `json:"metrics_calculated"`
	FailedTasks       int        `json:"failed_tasks"`
	CacheHits         int        `json:"cache_hits"`
	ExecutionMS       int64      `json:"execution_ms"`
	DataQualityScore  float64    `json:"data_quality_score"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// NewRunResponse converts a ledger entry to its wire form.
func NewRunResponse(entry *metrics.RunLedgerEntry) RunResponse {
	periods := make([]string, len(entry.Periods))
	for i, p := range entry.Periods {
		periods[i] = p.String()
	}
	return RunResponse{
		ID:                entry.ID.String(),
		RunDate:           entry.RunDate,
		Periods:           periods,
		Status:            entry.Status.String(),
		TenantsProcessed:  entry.TenantsProcessed,
		TotalTenants:      entry.TotalTenants,
		MetricsCalculated: entry.MetricsCalculated,
		FailedTasks:       entry.FailedTasks,
		CacheHits:         entry.CacheHits,
		ExecutionMS:       entry.ExecutionTime.Milliseconds(),
		DataQualityScore:  entry.DataQualityScore,
		ErrorMessage:      entry.ErrorMessage,
		StartedAt:         entry.StartedAt,
		CompletedAt:       entry.CompletedAt,
	}
}

// NewRunResponseList converts a slice of ledger entries.
func NewRunResponseList(entries []*metrics.RunLedgerEntry) []RunResponse {
	out := make([]RunResponse, len(entries))
	for i, entry := range entries {
		out[i] = NewRunResponse(entry)
	}
	return out
}

// MetricsRecordResponse is the wire form of one computed metrics record.
type MetricsRecordResponse struct {
	TenantID     string               `json:"tenant_id"`
	MetricKind   string               `json:"metric_kind"`
	Period       string               `json:"period"`
	Value        metrics.MetricsValue `json:"value"`
	CalculatedAt time.Time            `json:"calculated_at"`
}

// NewMetricsRecordResponse converts a metrics record to its wire form.
func NewMetricsRecordResponse(record *metrics.MetricsRecord) MetricsRecordResponse {
	return MetricsRecordResponse{
		TenantID:     record.TenantID.String(),
		MetricKind:   string(record.Kind),
		Period:       record.Period.String(),
		Value:        record.Value,
		CalculatedAt: record.CalculatedAt,
	}
}

// NewMetricsRecordResponseList converts a slice of metrics records.
func NewMetricsRecordResponseList(records []*metrics.MetricsRecord) []MetricsRecordResponse {
	out := make([]MetricsRecordResponse, len(records))
	for i, record := range records {
		out[i] = NewMetricsRecordResponse(record)
	}
	return out
}
