package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
)

const dateLayout = "2006-01-02"

// Deadline texts that mark a record as having no real deadline; together
// with age these qualify a row for the stale sweep.
var staleDeadlineTexts = []string{"Not Specified", "N/A"}

// ProcessedRepository persists accepted opportunities in the
// processed_opportunities table.
type ProcessedRepository struct {
	db      *sqlx.DB
	logger  *slog.Logger
	builder sq.StatementBuilderType
}

var _ ports.ProcessedStore = (*ProcessedRepository)(nil)

// NewProcessedRepository wires a sqlx.DB implementation.
func NewProcessedRepository(db *sqlx.DB, logger *slog.Logger) *ProcessedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessedRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Upsert writes one accepted opportunity. Rows are written once and never
// updated afterwards, so conflicts are ignored.
func (r *ProcessedRepository) Upsert(ctx context.Context, opp domain.ProcessedOpportunity) error {
	query, args, err := r.builder.
		Insert("processed_opportunities").
		Columns("link", "title", "source", "geographic_scope", "funding_amount", "funder",
			"deadline", "raw_deadline_text", "focus_areas", "summary", "processed_at").
		Values(opp.Link, opp.Title, opp.Source, opp.GeographicScope, opp.FundingAmount, opp.Funder,
			opp.Deadline, opp.RawDeadlineText, opp.FocusAreas, opp.Summary, opp.ProcessedAt).
		Suffix("ON CONFLICT (link) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build processed upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert processed opportunity: %w", err)
	}

	r.logger.Info("processed opportunity saved", "link", opp.Link)
	return nil
}

// DeleteExpired removes rows whose concrete deadline is strictly before the
// given day.
func (r *ProcessedRepository) DeleteExpired(ctx context.Context, today time.Time) (int64, error) {
	query, args, err := r.builder.
		Delete("processed_opportunities").
		Where(sq.NotEq{"deadline": nil}).
		Where(sq.Lt{"deadline": today.UTC().Format(dateLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build expired delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired opportunities: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired delete rows affected: %w", err)
	}
	return deleted, nil
}

// DeleteStale removes rows with no concrete deadline whose original deadline
// text is an "unspecified" keyword and that were processed before the cutoff.
func (r *ProcessedRepository) DeleteStale(ctx context.Context, processedBefore time.Time) (int64, error) {
	query, args, err := r.builder.
		Delete("processed_opportunities").
		Where(sq.Eq{"deadline": nil}).
		Where(sq.Eq{"raw_deadline_text": staleDeadlineTexts}).
		Where(sq.Lt{"processed_at": processedBefore}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build stale delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale opportunities: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale delete rows affected: %w", err)
	}
	return deleted, nil
}
