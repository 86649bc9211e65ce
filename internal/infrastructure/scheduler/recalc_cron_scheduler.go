// Package scheduler drives the daily metrics recalculation and ledger
// cleanup on a fixed wall-clock schedule.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/shared"
)

// cronTickerInterval is the interval at which the cron scheduler checks for execution
const cronTickerInterval = 1 * time.Minute

// RecalcRunner is the slice of the recalculation service the scheduler needs.
type RecalcRunner interface {
	RunAsync(ctx context.Context, periods []metrics.Period) (*metrics.RunLedgerEntry, error)
	PruneLedger(ctx context.Context) (int64, error)
}

// RecalcCronSchedulerConfig holds configuration for the cron-based recalculation scheduler
type RecalcCronSchedulerConfig struct {
	// Enabled indicates if the cron scheduler is enabled
	Enabled bool
	// DailyHour is the hour (0-23, UTC) to run the full recalculation
	DailyHour int
	// DailyMinute is the minute (0-59) to run the full recalculation
	DailyMinute int
	// CleanupHour is the hour (0-23, UTC) to prune old ledger entries
	CleanupHour int
}

// DefaultRecalcCronSchedulerConfig returns the default schedule: recalculation
// at 03:00 UTC, ledger cleanup an hour later.
func DefaultRecalcCronSchedulerConfig() RecalcCronSchedulerConfig {
	return RecalcCronSchedulerConfig{
		Enabled:     true,
		DailyHour:   3,
		DailyMinute: 0,
		CleanupHour: 4,
	}
}

// Validate checks the schedule fields are in range.
func (c RecalcCronSchedulerConfig) Validate() error {
	if c.DailyHour < 0 || c.DailyHour > 23 {
		return ErrInvalidConfig
	}
	if c.DailyMinute < 0 || c.DailyMinute > 59 {
		return ErrInvalidConfig
	}
	if c.CleanupHour < 0 || c.CleanupHour > 23 {
		return ErrInvalidConfig
	}
	return nil
}

// RecalcCronScheduler fires the daily recalculation run and the ledger
// cleanup at their configured times. The heavy lifting (concurrency, retry,
// run bookkeeping) lives in the recalculation service; this type only decides
// when to kick it.
type RecalcCronScheduler struct {
	config RecalcCronSchedulerConfig
	runner RecalcRunner
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastRunAt *time.Time
	nextRunAt *time.Time
}

// NewRecalcCronScheduler creates a new cron-based recalculation scheduler
func NewRecalcCronScheduler(config RecalcCronSchedulerConfig, runner RecalcRunner, logger *zap.Logger) (*RecalcCronScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RecalcCronScheduler{
		config: config,
		runner: runner,
		logger: logger,
	}, nil
}

// Start starts the cron loop. A disabled scheduler starts as a no-op so the
// caller does not need to special-case it.
func (s *RecalcCronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info("Recalculation cron scheduler disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.calculateNextRunTime(time.Now().UTC())

	s.wg.Add(1)
	go s.cronLoop(ctx)

	s.logger.Info("Recalculation cron scheduler started",
		zap.Int("daily_hour", s.config.DailyHour),
		zap.Int("daily_minute", s.config.DailyMinute),
		zap.Int("cleanup_hour", s.config.CleanupHour),
		zap.Timep("next_run_at", s.nextRunAt),
	)

	return nil
}

// Stop stops the cron loop, waiting for it to exit or the context to expire.
func (s *RecalcCronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Recalculation cron scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Recalculation cron scheduler stop timed out")
		return ctx.Err()
	}
}

// cronLoop checks once a minute whether either scheduled action is due.
func (s *RecalcCronScheduler) cronLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(cronTickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			now = now.UTC()
			if s.shouldRecalculate(now) {
				s.runRecalculation(ctx)
				s.calculateNextRunTime(now)
			}
			if s.shouldCleanup(now) {
				s.runCleanup(ctx)
			}
		}
	}
}

// shouldRecalculate checks if the daily recalculation is due at the given time
func (s *RecalcCronScheduler) shouldRecalculate(now time.Time) bool {
	return now.Hour() == s.config.DailyHour && now.Minute() == s.config.DailyMinute
}

// shouldCleanup checks if the ledger cleanup is due at the given time
func (s *RecalcCronScheduler) shouldCleanup(now time.Time) bool {
	return now.Hour() == s.config.CleanupHour && now.Minute() == s.config.DailyMinute
}

// calculateNextRunTime records when the next recalculation will fire.
func (s *RecalcCronScheduler) calculateNextRunTime(now time.Time) {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.DailyHour, s.config.DailyMinute, 0, 0, time.UTC)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()
}

// runRecalculation kicks a full run over every period. An already-active run
// is a normal outcome here: the previous day's run may still be draining.
func (s *RecalcCronScheduler) runRecalculation(ctx context.Context) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.lastRunAt = &now
	s.mu.Unlock()

	entry, err := s.runner.RunAsync(ctx, metrics.AllPeriods())
	if err != nil {
		if errors.Is(err, shared.ErrRunInProgress) {
			s.logger.Warn("Skipping scheduled recalculation, a run is already active")
			return
		}
		s.logger.Error("Failed to start scheduled recalculation", zap.Error(err))
		return
	}

	s.logger.Info("Scheduled recalculation started",
		zap.String("run_id", entry.ID.String()),
	)
}

// runCleanup prunes ledger entries past the retention horizon.
func (s *RecalcCronScheduler) runCleanup(ctx context.Context) {
	deleted, err := s.runner.PruneLedger(ctx)
	if err != nil {
		s.logger.Error("Ledger cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Pruned old run ledger entries", zap.Int64("deleted", deleted))
	}
}

// TriggerManualRun starts a recalculation outside the schedule.
func (s *RecalcCronScheduler) TriggerManualRun(ctx context.Context, periods []metrics.Period) (*metrics.RunLedgerEntry, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil, ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	return s.runner.RunAsync(ctx, periods)
}

// GetStatus returns the current status of the cron scheduler
func (s *RecalcCronScheduler) GetStatus() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"enabled":      s.config.Enabled,
		"is_running":   s.isRunning,
		"daily_hour":   s.config.DailyHour,
		"daily_minute": s.config.DailyMinute,
		"cleanup_hour": s.config.CleanupHour,
		"last_run_at":  s.lastRunAt,
		"next_run_at":  s.nextRunAt,
	}
}

// GetNextRunAt returns when the next scheduled run will occur
func (s *RecalcCronScheduler) GetNextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}

var _ RecalcRunner = (*appmetrics.RecalculationService)(nil)
