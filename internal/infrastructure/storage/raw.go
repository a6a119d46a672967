package storage

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
)

const linkPageSize = 1000

// RawRepository persists scraped candidates in the raw_opportunities table.
type RawRepository struct {
	db      *sqlx.DB
	logger  *slog.Logger
	builder sq.StatementBuilderType
}

var _ ports.RawStore = (*RawRepository)(nil)

// NewRawRepository wires a sqlx.DB implementation.
func NewRawRepository(db *sqlx.DB, logger *slog.Logger) *RawRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RawRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// UpsertRaw bulk-inserts candidates, skipping links already stored. A link
// seen before is never re-inserted with new content.
func (r *RawRepository) UpsertRaw(ctx context.Context, opps []domain.RawOpportunity) (int, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	builder := r.builder.
		Insert("raw_opportunities").
		Columns("link", "title", "source", "full_text", "status", "scraped_at")
	for _, opp := range opps {
		builder = builder.Values(opp.Link, opp.Title, opp.Source, opp.FullText, opp.Status, opp.ScrapedAt)
	}

	query, args, err := builder.Suffix("ON CONFLICT (link) DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build raw upsert: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert raw opportunities: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("raw upsert rows affected: %w", err)
	}

	r.logger.Info("raw opportunities upserted", "sent", len(opps), "inserted", inserted)
	return int(inserted), nil
}

// AllLinks pages through the full table and returns every link ever scraped.
func (r *RawRepository) AllLinks(ctx context.Context) (map[string]struct{}, error) {
	links := make(map[string]struct{})

	for offset := uint64(0); ; offset += linkPageSize {
		query, args, err := r.builder.
			Select("link").
			From("raw_opportunities").
			OrderBy("link").
			Limit(linkPageSize).
			Offset(offset).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build link scan: %w", err)
		}

		var page []string
		if err := r.db.SelectContext(ctx, &page, query, args...); err != nil {
			return nil, fmt.Errorf("scan links page: %w", err)
		}

		for _, link := range page {
			links[link] = struct{}{}
		}
		if len(page) < linkPageSize {
			break
		}
	}

	r.logger.Info("known links loaded", "count", len(links))
	return links, nil
}

// Pending returns every row still awaiting analysis.
func (r *RawRepository) Pending(ctx context.Context) ([]domain.RawOpportunity, error) {
	query, args, err := r.builder.
		Select("link", "title", "source", "full_text", "status", "scraped_at").
		From("raw_opportunities").
		Where(sq.Eq{"status": domain.StatusPendingAnalysis}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	var rows []domain.RawOpportunity
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query pending opportunities: %w", err)
	}

	return rows, nil
}

// BulkUpdateStatus applies every accumulated status transition in a single
// statement, joining against unnested parallel arrays.
func (r *RawRepository) BulkUpdateStatus(ctx context.Context, updates []domain.StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	links := make([]string, len(updates))
	statuses := make([]string, len(updates))
	for i, u := range updates {
		links[i] = u.Link
		statuses[i] = string(u.Status)
	}

	const query = `
		UPDATE raw_opportunities AS r
		SET status = u.status
		FROM (SELECT unnest($1::text[]) AS link, unnest($2::text[]) AS status) AS u
		WHERE r.link = u.link`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(links), pq.Array(statuses)); err != nil {
		return fmt.Errorf("bulk status update: %w", err)
	}

	r.logger.Info("bulk status update committed", "count", len(updates))
	return nil
}
