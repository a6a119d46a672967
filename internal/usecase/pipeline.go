package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
)

// Settings is the immutable configuration handed to the pipeline driver.
type Settings struct {
	// MaxConcurrentAICalls caps in-flight classifier round-trips; it is also
	// the analysis pool size, since extra schedulable workers would only
	// block on admission.
	MaxConcurrentAICalls int
	// TargetCountry is the country relevance is judged against.
	TargetCountry string
	// GeneralScopes are the broad geographic designators that keep an
	// opportunity relevant when no specific country list disqualifies it.
	GeneralScopes []string
	// StaleMonths is the age past which a processed record with no concrete
	// deadline is deleted by maintenance.
	StaleMonths int
}

// PipelineDeps wires all collaborators into the orchestration pipeline.
type PipelineDeps struct {
	Sources    []ports.OpportunitySource
	RawStore   ports.RawStore
	Processed  ports.ProcessedStore
	Classifier ports.Classifier
	Settings   Settings
	Logger     *slog.Logger
}

// Pipeline implements the three-stage aggregation run:
// maintenance, collection, analysis.
type Pipeline struct {
	sources    []ports.OpportunitySource
	raw        ports.RawStore
	processed  ports.ProcessedStore
	classifier ports.Classifier
	settings   Settings
	logger     *slog.Logger

	target        string
	generalScopes map[string]struct{}

	now func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scopes := make(map[string]struct{}, len(deps.Settings.GeneralScopes))
	for _, scope := range deps.Settings.GeneralScopes {
		scopes[normalizeLocation(scope)] = struct{}{}
	}

	return &Pipeline{
		sources:       deps.Sources,
		raw:           deps.RawStore,
		processed:     deps.Processed,
		classifier:    deps.Classifier,
		settings:      deps.Settings,
		logger:        logger,
		target:        normalizeLocation(deps.Settings.TargetCountry),
		generalScopes: scopes,
		now:           time.Now,
	}
}

// Run executes one full pipeline pass. Per-item and per-source failures are
// logged and isolated; only a store unreachable for the whole run aborts.
func (p *Pipeline) Run(ctx context.Context) error {
	start := p.now()
	p.logger.Info("starting funding aggregator run")

	p.runMaintenanceStage(ctx)

	if err := p.runCollectorStage(ctx); err != nil {
		return fmt.Errorf("collector stage: %w", err)
	}

	if err := p.runProcessorStage(ctx); err != nil {
		return fmt.Errorf("processor stage: %w", err)
	}

	p.logger.Info("run finished", "duration", p.now().Sub(start).Round(time.Second).String())
	return nil
}

// runMaintenanceStage retires processed records that can no longer be acted
// on: concrete deadlines in the past, and unspecified-deadline records older
// than the staleness threshold. Both passes are independent and idempotent.
func (p *Pipeline) runMaintenanceStage(ctx context.Context) {
	p.logger.Info("maintenance stage starting")

	today := dateOnly(p.now().UTC())
	if deleted, err := p.processed.DeleteExpired(ctx, today); err != nil {
		p.logger.Error("deleting expired opportunities failed", "error", err)
	} else {
		p.logger.Info("expired opportunities deleted", "count", deleted)
	}

	cutoff := p.now().UTC().AddDate(0, -p.settings.StaleMonths, 0)
	if deleted, err := p.processed.DeleteStale(ctx, cutoff); err != nil {
		p.logger.Error("deleting stale opportunities failed", "error", err)
	} else {
		p.logger.Info("stale opportunities deleted", "count", deleted, "cutoff", cutoff.Format("2006-01-02"))
	}

	p.logger.Info("maintenance stage complete")
}

// runCollectorStage scrapes all sources concurrently, reconciles the union
// against the known-link set, and bulk-saves genuinely new candidates.
func (p *Pipeline) runCollectorStage(ctx context.Context) error {
	p.logger.Info("collector stage starting", "sources", len(p.sources))

	known, err := p.raw.AllLinks(ctx)
	if err != nil {
		return fmt.Errorf("load known links: %w", err)
	}

	var mu sync.Mutex
	var candidates []domain.RawOpportunity

	var g errgroup.Group
	for _, source := range p.sources {
		source := source
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("scraper panicked", "source", source.Name(), "panic", r)
				}
			}()

			results, fetchErr := source.Fetch(ctx, known)
			if fetchErr != nil {
				p.logger.Error("scraper failed", "source", source.Name(), "error", fetchErr)
				return nil
			}

			mu.Lock()
			candidates = append(candidates, results...)
			mu.Unlock()

			p.logger.Info("scraper finished", "source", source.Name(), "count", len(results))
			return nil
		})
	}
	_ = g.Wait()

	unique := reconcileCandidates(known, candidates)
	if dropped := len(candidates) - len(unique); dropped > 0 {
		p.logger.Info("dropped cross-posted duplicates", "count", dropped)
	}

	if len(unique) == 0 {
		p.logger.Info("no new raw opportunities found")
		return nil
	}

	if _, err := p.raw.UpsertRaw(ctx, unique); err != nil {
		p.logger.Error("saving raw opportunities failed", "count", len(unique), "error", err)
		return nil
	}

	p.logger.Info("collector stage complete", "new", len(unique))
	return nil
}

// reconcileCandidates drops candidates already known to the store, then
// keeps the first sighting of each remaining link. Which source wins a
// cross-posted link depends on scraper completion order.
func reconcileCandidates(known map[string]struct{}, candidates []domain.RawOpportunity) []domain.RawOpportunity {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]domain.RawOpportunity, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.Link == "" {
			continue
		}
		if _, exists := known[candidate.Link]; exists {
			continue
		}
		if _, exists := seen[candidate.Link]; exists {
			continue
		}
		seen[candidate.Link] = struct{}{}
		unique = append(unique, candidate)
	}

	return unique
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func titlePrefix(title string) string {
	runes := []rune(title)
	if len(runes) <= 60 {
		return title
	}
	return string(runes[:60]) + "..."
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
