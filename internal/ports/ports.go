package ports

import (
	"context"
	"time"

	"FundingScanner/internal/domain"
)

// OpportunitySource scrapes one site for fresh postings. The known-link set
// is the only bookkeeping between runs: sources skip links already stored.
// Sources degrade to an empty result on unrecoverable transport failure.
type OpportunitySource interface {
	Name() string
	Fetch(ctx context.Context, knownLinks map[string]struct{}) ([]domain.RawOpportunity, error)
}

// RawStore persists every scraped candidate with its processing status.
type RawStore interface {
	// UpsertRaw inserts new rows, silently skipping links already stored.
	UpsertRaw(ctx context.Context, opps []domain.RawOpportunity) (int, error)
	// AllLinks returns every link ever scraped, via a paginated full scan.
	AllLinks(ctx context.Context) (map[string]struct{}, error)
	// Pending returns rows still awaiting analysis.
	Pending(ctx context.Context) ([]domain.RawOpportunity, error)
	// BulkUpdateStatus applies all accumulated status transitions in a
	// single round trip.
	BulkUpdateStatus(ctx context.Context, updates []domain.StatusUpdate) error
}

// ProcessedStore persists accepted, enriched opportunities.
type ProcessedStore interface {
	Upsert(ctx context.Context, opp domain.ProcessedOpportunity) error
	// DeleteExpired removes rows whose concrete deadline is strictly before
	// the given day and returns the number deleted.
	DeleteExpired(ctx context.Context, today time.Time) (int64, error)
	// DeleteStale removes rows with no concrete deadline whose original
	// deadline text is an "unspecified" keyword and whose processing
	// timestamp is older than the cutoff.
	DeleteStale(ctx context.Context, processedBefore time.Time) (int64, error)
}

// Classifier runs the two analysis tasks against the external model. Both
// methods absorb transport failures internally (retry with backoff) and
// signal exhaustion through sentinel values rather than errors, so the
// worker pool branches on data instead of handling exceptions.
type Classifier interface {
	GeographicScope(ctx context.Context, title, fullText string) domain.GeoScope
	Enrichment(ctx context.Context, title, fullText string) domain.Enrichment
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
