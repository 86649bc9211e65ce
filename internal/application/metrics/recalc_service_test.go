package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Marseau/UBS-sub017/internal/domain/events"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/shared"
)

// fakeEventStore serves canned events and can fail selected tenants, so runs
// exercise failure isolation without a database.
type fakeEventStore struct {
	mu           sync.Mutex
	failTenants  map[uuid.UUID]bool
	fetchCount   int
	maxParallel  int
	curParallel  int
	fetchLatency time.Duration
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{failTenants: make(map[uuid.UUID]bool)}
}

func (f *fakeEventStore) enter() {
	f.mu.Lock()
	f.fetchCount++
	f.curParallel++
	if f.curParallel > f.maxParallel {
		f.maxParallel = f.curParallel
	}
	f.mu.Unlock()
}

func (f *fakeEventStore) leave() {
	f.mu.Lock()
	f.curParallel--
	f.mu.Unlock()
}

func (f *fakeEventStore) FetchConversationMessages(ctx context.Context, tenantID uuid.UUID, w events.Window) ([]events.ConversationMessage, error) {
	f.enter()
	defer f.leave()
	if f.fetchLatency > 0 {
		time.Sleep(f.fetchLatency)
	}
	f.mu.Lock()
	fail := f.failTenants[tenantID]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("simulated event store outage")
	}
	return nil, nil
}

func (f *fakeEventStore) FetchAppointments(ctx context.Context, tenantID uuid.UUID, w events.Window) ([]events.Appointment, error) {
	return nil, nil
}

func (f *fakeEventStore) FetchPayments(ctx context.Context, tenantID uuid.UUID, w events.Window) ([]events.SubscriptionPayment, error) {
	return nil, nil
}

func (f *fakeEventStore) ReturningCustomers(ctx context.Context, tenantID uuid.UUID, userIDs []uuid.UUID, before time.Time) (map[uuid.UUID]bool, error) {
	return map[uuid.UUID]bool{}, nil
}

func (f *fakeEventStore) Watermark(ctx context.Context, tenantID uuid.UUID, w events.Window) (events.Watermark, error) {
	return events.Watermark{}, nil
}

type fakeTenantRepo struct {
	ids []uuid.UUID
	err error
}

func (f *fakeTenantRepo) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	return f.ids, f.err
}

type fakeMetricsRepo struct {
	mu      sync.Mutex
	records map[string]*metrics.MetricsRecord
	upserts int
}

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{records: make(map[string]*metrics.MetricsRecord)}
}

func (f *fakeMetricsRepo) key(tenantID uuid.UUID, kind metrics.MetricKind, period metrics.Period) string {
	return tenantID.String() + "|" + kind.String() + "|" + period.String()
}

func (f *fakeMetricsRepo) Upsert(ctx context.Context, record *metrics.MetricsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.records[f.key(record.TenantID, record.Kind, record.Period)] = record
	return nil
}

func (f *fakeMetricsRepo) Get(ctx context.Context, tenantID uuid.UUID, kind metrics.MetricKind, period metrics.Period) (*metrics.MetricsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[f.key(tenantID, kind, period)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return record, nil
}

func (f *fakeMetricsRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*metrics.MetricsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*metrics.MetricsRecord
	for _, r := range f.records {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*metrics.RunLedgerEntry
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[uuid.UUID]*metrics.RunLedgerEntry)}
}

func (f *fakeLedgerRepo) Create(ctx context.Context, entry *metrics.RunLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.entries[entry.ID] = &copied
	return nil
}

func (f *fakeLedgerRepo) Finalize(ctx context.Context, entry *metrics.RunLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.entries[entry.ID] = &copied
	return nil
}

func (f *fakeLedgerRepo) FindByID(ctx context.Context, id uuid.UUID) (*metrics.RunLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return entry, nil
}

func (f *fakeLedgerRepo) FindRecent(ctx context.Context, limit int) ([]*metrics.RunLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*metrics.RunLedgerEntry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedgerRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, e := range f.entries {
		if e.RunDate.Before(before) {
			delete(f.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*metrics.MetricsValue
	hits    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*metrics.MetricsValue)}
}

func (f *fakeCache) Get(ctx context.Context, key CacheKey) (*metrics.MetricsValue, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.entries[key.String()]
	if ok {
		f.hits++
	}
	return value, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, key CacheKey, value *metrics.MetricsValue, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[key.String()] = value
	return nil
}

func newTestService(t *testing.T, store events.Store, tenants metrics.TenantRepository, cache MetricsCache, cfg RecalculationConfig) (*RecalculationService, *fakeMetricsRepo, *fakeLedgerRepo) {
	t.Helper()
	records := newFakeMetricsRepo()
	ledger := newFakeLedgerRepo()
	calc := NewTenantMetricsCalculator(store, zap.NewNop())
	svc := NewRecalculationService(calc, tenants, records, ledger, store, cache, cfg, zap.NewNop())
	return svc, records, ledger
}

func tenantIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func fastConfig() RecalculationConfig {
	cfg := DefaultRecalculationConfig()
	cfg.RetryAttempts = 0
	cfg.RetryDelay = time.Millisecond
	cfg.CacheEnabled = false
	return cfg
}

func TestRun_ProcessesAllTenants(t *testing.T) {
	ids := tenantIDs(7)
	store := newFakeEventStore()
	svc, records, ledger := newTestService(t, store, &fakeTenantRepo{ids: ids}, nil, fastConfig())

	entry, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d, metrics.Period30d})
	require.NoError(t, err)

	assert.Equal(t, metrics.RunStatusCompleted, entry.Status)
	assert.Equal(t, 7, entry.TotalTenants)
	assert.Equal(t, 7, entry.TenantsProcessed)
	assert.Equal(t, 14, entry.MetricsCalculated)
	assert.Equal(t, 0, entry.FailedTasks)
	assert.Equal(t, 1.0, entry.DataQualityScore)

	// One record per tenant-period pair plus platform totals per period.
	records.mu.Lock()
	assert.Len(t, records.records, 14+2)
	records.mu.Unlock()

	persisted, err := ledger.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, metrics.RunStatusCompleted, persisted.Status)
}

func TestRun_FailureIsolation(t *testing.T) {
	ids := tenantIDs(5)
	store := newFakeEventStore()
	store.failTenants[ids[1]] = true
	store.failTenants[ids[3]] = true

	svc, _, _ := newTestService(t, store, &fakeTenantRepo{ids: ids}, nil, fastConfig())

	entry, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)

	assert.Equal(t, metrics.RunStatusCompleted, entry.Status, "task failures do not fail the run")
	assert.Equal(t, 3, entry.TenantsProcessed)
	assert.Equal(t, 2, entry.FailedTasks)
	assert.Equal(t, 3, entry.MetricsCalculated)
	assert.Equal(t, entry.TotalTenants, entry.TenantsProcessed+entry.FailedTasks)
	assert.InDelta(t, 0.6, entry.DataQualityScore, 1e-9)
}

func TestRun_TenantEnumerationFailureFailsRun(t *testing.T) {
	store := newFakeEventStore()
	svc, _, ledger := newTestService(t, store,
		&fakeTenantRepo{err: errors.New("tenants table unreachable")}, nil, fastConfig())

	entry, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, metrics.RunStatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "tenant enumeration failed")

	persisted, err := ledger.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, metrics.RunStatusFailed, persisted.Status)
}

func TestRun_SecondRunRejectedWhileActive(t *testing.T) {
	store := newFakeEventStore()
	store.fetchLatency = 50 * time.Millisecond
	svc, _, _ := newTestService(t, store, &fakeTenantRepo{ids: tenantIDs(3)}, nil, fastConfig())

	entry, err := svc.RunAsync(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)
	assert.Equal(t, metrics.RunStatusRunning, entry.Status)
	assert.True(t, svc.Stats().Running)

	_, err = svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	assert.ErrorIs(t, err, shared.ErrRunInProgress)

	// The run eventually finishes and releases the slot.
	assert.Eventually(t, func() bool { return !svc.Stats().Running },
		5*time.Second, 10*time.Millisecond)
}

func TestRun_TwoSequentialRunsTwoLedgerEntries(t *testing.T) {
	store := newFakeEventStore()
	svc, _, ledger := newTestService(t, store, &fakeTenantRepo{ids: tenantIDs(2)}, nil, fastConfig())

	first, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	entries, err := ledger.FindRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_CacheHitSkipsRecomputeAndUpsert(t *testing.T) {
	ids := tenantIDs(1)
	store := newFakeEventStore()
	cache := newFakeCache()
	cfg := fastConfig()
	cfg.CacheEnabled = true

	svc, records, _ := newTestService(t, store, &fakeTenantRepo{ids: ids}, cache, cfg)

	first, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)
	assert.Equal(t, 1, first.MetricsCalculated)
	assert.Equal(t, 0, first.CacheHits)
	assert.Equal(t, 1, cache.sets)

	records.mu.Lock()
	upsertsAfterFirst := records.upserts
	records.mu.Unlock()

	// Watermark is unchanged, so the second run addresses the same key.
	second, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)
	assert.Equal(t, 0, second.MetricsCalculated)
	assert.Equal(t, 1, second.CacheHits)

	records.mu.Lock()
	// Only the platform totals record is rewritten on a cache hit.
	assert.Equal(t, upsertsAfterFirst+1, records.upserts)
	records.mu.Unlock()
}

func TestRun_ConcurrencyCeilingHonored(t *testing.T) {
	ids := tenantIDs(30)
	store := newFakeEventStore()
	store.fetchLatency = 5 * time.Millisecond

	cfg := fastConfig()
	cfg.MaxConcurrency = 4

	svc, _, _ := newTestService(t, store, &fakeTenantRepo{ids: ids}, nil, cfg)

	_, err := svc.Run(context.Background(), []metrics.Period{metrics.Period7d})
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.LessOrEqual(t, store.maxParallel, 4)
	assert.Greater(t, store.maxParallel, 1, "work actually ran in parallel")
}

func TestRun_InvalidPeriodRejected(t *testing.T) {
	store := newFakeEventStore()
	svc, _, _ := newTestService(t, store, &fakeTenantRepo{}, nil, fastConfig())

	_, err := svc.Run(context.Background(), []metrics.Period{"14d"})
	assert.ErrorIs(t, err, shared.ErrInvalidPeriod)
}

func TestRun_CancelledContextFailsRun(t *testing.T) {
	ids := tenantIDs(500)
	store := newFakeEventStore()
	store.fetchLatency = time.Millisecond

	cfg := fastConfig()
	cfg.BatchSize = 10
	cfg.MaxConcurrency = 2

	svc, _, _ := newTestService(t, store, &fakeTenantRepo{ids: ids}, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	entry, err := svc.Run(ctx, []metrics.Period{metrics.Period7d})
	require.NoError(t, err)

	assert.Equal(t, metrics.RunStatusFailed, entry.Status)
	assert.Less(t, entry.TenantsProcessed, 500, "run stopped before finishing all tenants")
}

func TestPruneLedger(t *testing.T) {
	store := newFakeEventStore()
	svc, _, ledger := newTestService(t, store, &fakeTenantRepo{}, nil, fastConfig())

	old := metrics.NewRunLedgerEntry([]metrics.Period{metrics.Period7d})
	old.RunDate = time.Now().UTC().Add(-120 * 24 * time.Hour)
	require.NoError(t, ledger.Create(context.Background(), old))

	fresh := metrics.NewRunLedgerEntry([]metrics.Period{metrics.Period7d})
	require.NoError(t, ledger.Create(context.Background(), fresh))

	deleted, err := svc.PruneLedger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = ledger.FindByID(context.Background(), old.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = ledger.FindByID(context.Background(), fresh.ID)
	assert.NoError(t, err)
}

func TestDataQualityScore(t *testing.T) {
	assert.Equal(t, 1.0, dataQualityScore(0, 0, 0))
	assert.Equal(t, 1.0, dataQualityScore(10, 0, 0))
	assert.InDelta(t, 0.9, dataQualityScore(10, 1, 0), 1e-9)
	assert.InDelta(t, 0.9, dataQualityScore(10, 0, 1), 1e-9)
	assert.InDelta(t, 0.8, dataQualityScore(10, 1, 1), 1e-9)
	assert.Equal(t, 0.0, dataQualityScore(2, 4, 0))
}
