package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Marseau/UBS-sub017/internal/domain/events"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/shared"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/telemetry"
)

// RecalculationConfig bounds one orchestration run.
type RecalculationConfig struct {
	MaxConcurrency  int
	BatchSize       int
	TaskTimeout     time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	CacheEnabled    bool
	LedgerRetention time.Duration
}

// DefaultRecalculationConfig returns the production defaults.
func DefaultRecalculationConfig() RecalculationConfig {
	return RecalculationConfig{
		MaxConcurrency:  100,
		BatchSize:       100,
		TaskTimeout:     30 * time.Second,
		RetryAttempts:   2,
		RetryDelay:      500 * time.Millisecond,
		CacheEnabled:    true,
		LedgerRetention: 90 * 24 * time.Hour,
	}
}

func (c *RecalculationConfig) normalize() {
	defaults := DefaultRecalculationConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaults.MaxConcurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = defaults.TaskTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	if c.LedgerRetention <= 0 {
		c.LedgerRetention = defaults.LedgerRetention
	}
}

// CacheKey addresses one cached metrics value. The fingerprint embeds the
// event-store watermark, so stale entries simply stop being addressed when
// new events arrive.
type CacheKey struct {
	TenantID    uuid.UUID
	Kind        metrics.MetricKind
	Period      metrics.Period
	Fingerprint string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("metrics:%s:%s:%s:%s", k.TenantID, k.Kind, k.Period, k.Fingerprint)
}

// MetricsCache is the read-through cache consulted before recomputing a
// tenant. Get reports a miss with ok=false and a nil error.
type MetricsCache interface {
	Get(ctx context.Context, key CacheKey) (*metrics.MetricsValue, bool, error)
	Set(ctx context.Context, key CacheKey, value *metrics.MetricsValue, ttl time.Duration) error
}

// ServiceStats is a point-in-time view of the orchestrator.
type ServiceStats struct {
	Running        bool       `json:"running"`
	ActiveRunID    *uuid.UUID `json:"active_run_id,omitempty"`
	MaxConcurrency int        `json:"max_concurrency"`
	BatchSize      int        `json:"batch_size"`
}

// RecalculationService orchestrates metric recomputation across all active
// tenants: bounded-concurrency fan-out, per-task retries, cache lookups, and
// a persisted run ledger entry per execution. A single run is active at a
// time; one tenant's failure never aborts the run.
type RecalculationService struct {
	calculator *TenantMetricsCalculator
	tenants    metrics.TenantRepository
	records    metrics.MetricsRepository
	ledger     metrics.RunLedgerRepository
	events     events.Store
	cache      MetricsCache
	config     RecalculationConfig
	logger     *zap.Logger

	mu        sync.Mutex
	activeRun *metrics.RunLedgerEntry
}

// NewRecalculationService wires the orchestrator. cache may be nil when
// caching is disabled.
func NewRecalculationService(
	calculator *TenantMetricsCalculator,
	tenants metrics.TenantRepository,
	records metrics.MetricsRepository,
	ledger metrics.RunLedgerRepository,
	store events.Store,
	cache MetricsCache,
	config RecalculationConfig,
	logger *zap.Logger,
) *RecalculationService {
	config.normalize()
	if cache == nil {
		config.CacheEnabled = false
	}
	return &RecalculationService{
		calculator: calculator,
		tenants:    tenants,
		records:    records,
		ledger:     ledger,
		events:     store,
		cache:      cache,
		config:     config,
		logger:     logger,
	}
}

// Run executes a full recalculation pass synchronously and returns the
// finalized ledger entry.
func (s *RecalculationService) Run(ctx context.Context, periods []metrics.Period) (*metrics.RunLedgerEntry, error) {
	entry, err := s.begin(ctx, periods)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, entry)
	return entry, nil
}

// RunAsync starts a recalculation pass in the background and returns the
// running ledger entry immediately, so callers can poll it by ID. The run
// detaches from the caller's cancellation.
func (s *RecalculationService) RunAsync(ctx context.Context, periods []metrics.Period) (*metrics.RunLedgerEntry, error) {
	entry, err := s.begin(ctx, periods)
	if err != nil {
		return nil, err
	}
	go s.execute(context.WithoutCancel(ctx), entry)
	return entry, nil
}

// Stats reports the orchestrator's current state.
func (s *RecalculationService) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := ServiceStats{
		Running:        s.activeRun != nil,
		MaxConcurrency: s.config.MaxConcurrency,
		BatchSize:      s.config.BatchSize,
	}
	if s.activeRun != nil {
		id := s.activeRun.ID
		stats.ActiveRunID = &id
	}
	return stats
}

// PruneLedger deletes ledger entries older than the configured retention and
// returns how many rows were removed.
func (s *RecalculationService) PruneLedger(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.LedgerRetention)
	deleted, err := s.ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune run ledger: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("run ledger pruned",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}

func (s *RecalculationService) begin(ctx context.Context, periods []metrics.Period) (*metrics.RunLedgerEntry, error) {
	if len(periods) == 0 {
		periods = metrics.AllPeriods()
	}
	for _, p := range periods {
		if !p.IsValid() {
			return nil, fmt.Errorf("period %q: %w", p, shared.ErrInvalidPeriod)
		}
	}

	s.mu.Lock()
	if s.activeRun != nil {
		s.mu.Unlock()
		return nil, shared.ErrRunInProgress
	}
	entry := metrics.NewRunLedgerEntry(periods)
	s.activeRun = entry
	s.mu.Unlock()

	if err := s.ledger.Create(ctx, entry); err != nil {
		s.mu.Lock()
		s.activeRun = nil
		s.mu.Unlock()
		return nil, fmt.Errorf("create run ledger entry: %w", err)
	}

	s.logger.Info("recalculation run started",
		zap.String("run_id", entry.ID.String()),
		zap.Any("periods", entry.Periods))
	return entry, nil
}

// runTally accumulates per-task results under its own lock.
type runTally struct {
	mu                sync.Mutex
	tenantsProcessed  int
	metricsCalculated int
	cacheHits         int
	failedTasks       int
	degradedTasks     int
	totalTasks        int
	platform          map[metrics.Period]*platformAccumulator
}

func (s *RecalculationService) execute(ctx context.Context, entry *metrics.RunLedgerEntry) {
	defer func() {
		s.mu.Lock()
		s.activeRun = nil
		s.mu.Unlock()
	}()

	ctx, span := telemetry.StartSpan(ctx, "recalculation.run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, entry.ID.String()))
	defer span.End()

	now := time.Now().UTC()

	tenantIDs, err := s.tenants.ListActiveIDs(ctx)
	if err != nil {
		s.logger.Error("tenant enumeration failed", zap.Error(err))
		telemetry.RecordError(span, err)
		entry.Fail(fmt.Sprintf("tenant enumeration failed: %v", err))
		s.finalize(entry)
		return
	}
	entry.TotalTenants = len(tenantIDs)

	tally := &runTally{platform: make(map[metrics.Period]*platformAccumulator)}
	for _, period := range entry.Periods {
		start, end := period.Window(now)
		tally.platform[period] = newPlatformAccumulator(period, start, end)
	}

	cancelled := false
	sem := make(chan struct{}, s.config.MaxConcurrency)

	for batchStart := 0; batchStart < len(tenantIDs); batchStart += s.config.BatchSize {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		batchEnd := batchStart + s.config.BatchSize
		if batchEnd > len(tenantIDs) {
			batchEnd = len(tenantIDs)
		}

		var wg sync.WaitGroup
		for _, tenantID := range tenantIDs[batchStart:batchEnd] {
			wg.Add(1)
			sem <- struct{}{}
			go func(id uuid.UUID) {
				defer wg.Done()
				defer func() { <-sem }()
				s.processTenant(ctx, id, entry.Periods, now, tally)
			}(tenantID)
		}
		wg.Wait()
	}

	s.writePlatformTotals(ctx, tally)

	tally.mu.Lock()
	entry.TenantsProcessed = tally.tenantsProcessed
	entry.MetricsCalculated = tally.metricsCalculated
	entry.CacheHits = tally.cacheHits
	entry.FailedTasks = tally.failedTasks
	entry.DataQualityScore = dataQualityScore(tally.totalTasks, tally.failedTasks, tally.degradedTasks)
	tally.mu.Unlock()

	telemetry.SetAttributes(span,
		"tenants_processed", entry.TenantsProcessed,
		"metrics_calculated", entry.MetricsCalculated,
		"failed_tasks", entry.FailedTasks,
	)

	if cancelled {
		entry.Fail("run cancelled before completion")
	} else {
		entry.Complete()
	}
	s.finalize(entry)

	s.logger.Info("recalculation run finished",
		zap.String("run_id", entry.ID.String()),
		zap.String("status", entry.Status.String()),
		zap.Int("tenants_processed", entry.TenantsProcessed),
		zap.Int("metrics_calculated", entry.MetricsCalculated),
		zap.Int("cache_hits", entry.CacheHits),
		zap.Int("failed_tasks", entry.FailedTasks),
		zap.Float64("data_quality_score", entry.DataQualityScore),
		zap.Duration("execution_time", entry.ExecutionTime))
}

// processTenant runs every period task for one tenant. Failures are counted
// per task; the tenant still counts as processed when at least one of its
// periods succeeded.
func (s *RecalculationService) processTenant(ctx context.Context, tenantID uuid.UUID, periods []metrics.Period, now time.Time, tally *runTally) {
	anySucceeded := false

	for _, period := range periods {
		outcome, err := s.processPeriodWithRetry(ctx, tenantID, period, now)

		tally.mu.Lock()
		tally.totalTasks++
		if err != nil {
			tally.failedTasks++
		} else {
			anySucceeded = true
			if outcome.cacheHit {
				tally.cacheHits++
			} else {
				tally.metricsCalculated++
			}
			if outcome.degraded {
				tally.degradedTasks++
			}
			if outcome.value != nil {
				tally.platform[period].add(outcome.value)
			}
		}
		tally.mu.Unlock()

		if err != nil {
			s.logger.Warn("tenant metrics task failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("period", period.String()),
				zap.Error(err))
		}
	}

	if anySucceeded {
		tally.mu.Lock()
		tally.tenantsProcessed++
		tally.mu.Unlock()
	}
}

type taskOutcome struct {
	value    *metrics.MetricsValue
	cacheHit bool
	degraded bool
}

func (s *RecalculationService) processPeriodWithRetry(ctx context.Context, tenantID uuid.UUID, period metrics.Period, now time.Time) (taskOutcome, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return taskOutcome{}, ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}

		outcome, err := s.processPeriod(ctx, tenantID, period, now)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return taskOutcome{}, lastErr
}

func (s *RecalculationService) processPeriod(ctx context.Context, tenantID uuid.UUID, period metrics.Period, now time.Time) (taskOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "recalculation.tenant_period",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPeriod, period.String()))
	defer span.End()

	taskCtx, cancel := context.WithTimeout(ctx, s.config.TaskTimeout)
	defer cancel()

	var key CacheKey
	if s.config.CacheEnabled {
		start, end := period.Window(now)
		watermark, err := s.events.Watermark(taskCtx, tenantID, events.Window{Start: start, End: end})
		if err != nil {
			return taskOutcome{}, fmt.Errorf("watermark: %w", err)
		}
		key = CacheKey{
			TenantID:    tenantID,
			Kind:        metrics.MetricKindComprehensive,
			Period:      period,
			Fingerprint: watermark.Fingerprint(),
		}

		cached, ok, err := s.cache.Get(taskCtx, key)
		if err != nil {
			s.logger.Warn("cache lookup failed",
				zap.String("key", key.String()),
				zap.Error(err))
		} else if ok {
			telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, true)
			return taskOutcome{value: cached, cacheHit: true}, nil
		}
	}

	result, err := s.calculator.Compute(taskCtx, tenantID, period, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return taskOutcome{}, err
	}

	record := &metrics.MetricsRecord{
		TenantID:     tenantID,
		Kind:         metrics.MetricKindComprehensive,
		Period:       period,
		Value:        result.Value,
		CalculatedAt: time.Now().UTC(),
	}
	if err := s.records.Upsert(taskCtx, record); err != nil {
		return taskOutcome{}, fmt.Errorf("upsert metrics record: %w", err)
	}

	if s.config.CacheEnabled {
		if err := s.cache.Set(taskCtx, key, &result.Value, period.CacheTTL()); err != nil {
			s.logger.Warn("cache write failed",
				zap.String("key", key.String()),
				zap.Error(err))
		}
	}

	return taskOutcome{value: &result.Value, degraded: result.Degraded}, nil
}

// writePlatformTotals upserts the cross-tenant aggregate record per period,
// keyed by the nil tenant ID. A platform write failure is logged but does not
// fail the run.
func (s *RecalculationService) writePlatformTotals(ctx context.Context, tally *runTally) {
	tally.mu.Lock()
	defer tally.mu.Unlock()

	for period, acc := range tally.platform {
		record := &metrics.MetricsRecord{
			TenantID:     uuid.Nil,
			Kind:         metrics.MetricKindPlatformTotals,
			Period:       period,
			Value:        acc.finalize(),
			CalculatedAt: time.Now().UTC(),
		}
		if err := s.records.Upsert(ctx, record); err != nil {
			s.logger.Error("platform totals upsert failed",
				zap.String("period", period.String()),
				zap.Error(err))
		}
	}
}

func (s *RecalculationService) finalize(entry *metrics.RunLedgerEntry) {
	// Finalization must survive a cancelled run context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ledger.Finalize(ctx, entry); err != nil {
		s.logger.Error("run ledger finalize failed",
			zap.String("run_id", entry.ID.String()),
			zap.Error(err))
	}
}

// dataQualityScore grades a run as the fraction of tasks that completed
// without falling back to default values. A degraded task produced a record
// with approximated fields, so it counts against the score the same as a
// failed one.
func dataQualityScore(total, failed, degraded int) float64 {
	if total == 0 {
		return 1.0
	}
	score := 1.0 - float64(failed+degraded)/float64(total)
	if score < 0 {
		return 0
	}
	return score
}
