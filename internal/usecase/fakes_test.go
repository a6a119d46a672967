package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
)

type fakeSource struct {
	name    string
	results []domain.RawOpportunity
	err     error

	mu       sync.Mutex
	gotKnown map[string]struct{}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, known map[string]struct{}) ([]domain.RawOpportunity, error) {
	f.mu.Lock()
	f.gotKnown = known
	f.mu.Unlock()
	return f.results, f.err
}

type fakeRawStore struct {
	mu      sync.Mutex
	links   map[string]struct{}
	pending []domain.RawOpportunity

	linksErr   error
	pendingErr error

	upserts [][]domain.RawOpportunity
	batches [][]domain.StatusUpdate
}

func (f *fakeRawStore) UpsertRaw(_ context.Context, opps []domain.RawOpportunity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, opps)
	return len(opps), nil
}

func (f *fakeRawStore) AllLinks(context.Context) (map[string]struct{}, error) {
	if f.linksErr != nil {
		return nil, f.linksErr
	}
	if f.links == nil {
		return map[string]struct{}{}, nil
	}
	return f.links, nil
}

func (f *fakeRawStore) Pending(context.Context) ([]domain.RawOpportunity, error) {
	return f.pending, f.pendingErr
}

func (f *fakeRawStore) BulkUpdateStatus(_ context.Context, updates []domain.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, updates)
	return nil
}

type fakeProcessedStore struct {
	mu      sync.Mutex
	upserts []domain.ProcessedOpportunity

	expiredDeleted int64
	staleDeleted   int64
	expiredCalls   []time.Time
	staleCalls     []time.Time
}

func (f *fakeProcessedStore) Upsert(_ context.Context, opp domain.ProcessedOpportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, opp)
	return nil
}

func (f *fakeProcessedStore) DeleteExpired(_ context.Context, today time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiredCalls = append(f.expiredCalls, today)
	deleted := f.expiredDeleted
	f.expiredDeleted = 0
	return deleted, nil
}

func (f *fakeProcessedStore) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCalls = append(f.staleCalls, before)
	deleted := f.staleDeleted
	f.staleDeleted = 0
	return deleted, nil
}

// scriptedClassifier returns canned results keyed by title and tracks how
// many calls are in flight at once.
type scriptedClassifier struct {
	geo    map[string]domain.GeoScope
	enrich map[string]domain.Enrichment

	delay       time.Duration
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (c *scriptedClassifier) track() func() {
	current := c.inFlight.Add(1)
	for {
		max := c.maxInFlight.Load()
		if current <= max || c.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return func() { c.inFlight.Add(-1) }
}

func (c *scriptedClassifier) GeographicScope(_ context.Context, title, _ string) domain.GeoScope {
	defer c.track()()
	return c.geo[title]
}

func (c *scriptedClassifier) Enrichment(_ context.Context, title, _ string) domain.Enrichment {
	defer c.track()()
	return c.enrich[title]
}

var _ ports.Classifier = (*scriptedClassifier)(nil)

func testSettings() Settings {
	return Settings{
		MaxConcurrentAICalls: 2,
		TargetCountry:        "Ethiopia",
		GeneralScopes: []string{
			"East Africa", "Horn of Africa", "Africa", "Sub-Saharan Africa",
			"Global", "International", "Developing Countries",
		},
		StaleMonths: 9,
	}
}

func newTestPipeline(t *testing.T, deps PipelineDeps) *Pipeline {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Settings.MaxConcurrentAICalls == 0 {
		deps.Settings = testSettings()
	}
	p := NewPipeline(deps)
	// Fixed clock: "today" is 2025-01-01 for every test.
	p.now = func() time.Time {
		return time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	}
	return p
}

func pendingItem(link, title string) domain.RawOpportunity {
	return domain.RawOpportunity{
		Link:     link,
		Title:    title,
		Source:   domain.SourceGSO,
		FullText: "full text for " + title,
		Status:   domain.StatusPendingAnalysis,
	}
}
