package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"FundingScanner/internal/domain"
)

// runProcessorStage drains pending raw opportunities through the classifier
// under the concurrency cap, then commits every terminal verdict in a single
// batched status update. Items with transient classifier failures produce no
// update and stay pending for the next run.
func (p *Pipeline) runProcessorStage(ctx context.Context) error {
	p.logger.Info("processor stage starting")

	pending, err := p.raw.Pending(ctx)
	if err != nil {
		return fmt.Errorf("load pending opportunities: %w", err)
	}
	if len(pending) == 0 {
		p.logger.Info("no opportunities pending analysis")
		return nil
	}

	p.logger.Info("analyzing pending opportunities",
		"count", len(pending), "max_concurrent", p.settings.MaxConcurrentAICalls)

	var mu sync.Mutex
	updates := make([]domain.StatusUpdate, 0, len(pending))
	relevantCount := 0

	var g errgroup.Group
	g.SetLimit(p.settings.MaxConcurrentAICalls)

	for _, opp := range pending {
		opp := opp
		g.Go(func() error {
			// A panic in one item's analysis must not take down siblings;
			// the item simply emits no update and is retried next run.
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("analysis panicked, leaving item pending",
						"link", opp.Link, "panic", r)
				}
			}()

			relevant, update := p.analyzeOpportunity(ctx, opp)

			mu.Lock()
			if update != nil {
				updates = append(updates, *update)
			}
			if relevant {
				relevantCount++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(updates) > 0 {
		p.logger.Info("committing status updates in one batch", "count", len(updates))
		if err := p.raw.BulkUpdateStatus(ctx, updates); err != nil {
			p.logger.Error("batched status commit failed; affected items will be reanalyzed next run", "error", err)
		}
	}

	p.logger.Info("processor stage complete", "processed", len(pending), "relevant", relevantCount)
	return nil
}

// analyzeOpportunity runs the per-item protocol: geographic scoping, the
// deterministic relevance rule, enrichment, deadline screening, and the
// processed-store insert for accepted items. The returned update is nil only
// for the retry-later outcome.
func (p *Pipeline) analyzeOpportunity(ctx context.Context, opp domain.RawOpportunity) (bool, *domain.StatusUpdate) {
	title := titlePrefix(opp.Title)
	p.logger.Info("analyzing opportunity", "title", title)

	geo := p.classifier.GeographicScope(ctx, opp.Title, opp.FullText)
	relevant, reason := relevantForTarget(geo, p.target, p.generalScopes)
	if !relevant {
		p.logger.Warn("record discarded", "reason", reason, "title", title)
		return false, &domain.StatusUpdate{Link: opp.Link, Status: domain.StatusIrrelevant}
	}
	p.logger.Info("record kept, proceeding to enrichment", "reason", reason, "title", title)

	enrichment := p.classifier.Enrichment(ctx, opp.Title, opp.FullText)
	if enrichment.TransientFailure() {
		p.logger.Error("enrichment failed after retries, will reattempt next run", "title", title)
		return false, nil
	}
	if enrichment.Malformed() {
		p.logger.Error("enrichment output unusable, discarding record", "summary", enrichment.Summary, "title", title)
		return false, &domain.StatusUpdate{Link: opp.Link, Status: domain.StatusAIError}
	}

	deadline := normalizeDeadline(enrichment.Deadline)
	if deadline != nil && deadline.Before(dateOnly(p.now().UTC())) {
		p.logger.Warn("record discarded, deadline has passed",
			"deadline", deadline.Format("2006-01-02"), "title", title)
		return false, &domain.StatusUpdate{Link: opp.Link, Status: domain.StatusExpired}
	}

	record := domain.ProcessedOpportunity{
		Link:            opp.Link,
		Title:           opp.Title,
		Source:          opp.Source,
		GeographicScope: strings.Join(geo.Eligible, ", "),
		FundingAmount:   enrichment.FundingAmount,
		Funder:          enrichment.Funder,
		Deadline:        deadline,
		RawDeadlineText: enrichment.Deadline,
		FocusAreas:      strings.Join(enrichment.FocusAreas, ", "),
		Summary:         enrichment.Summary,
		ProcessedAt:     p.now().UTC(),
	}

	// Accepted items are inserted one by one: an insert is low-frequency, and
	// its failure is logged without holding up the batched status commit.
	if err := p.processed.Upsert(ctx, record); err != nil {
		p.logger.Error("saving processed opportunity failed", "link", opp.Link, "error", err)
	}

	return true, &domain.StatusUpdate{Link: opp.Link, Status: domain.StatusRelevant}
}
