package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit entries.
// The table is append-only; nothing in this service updates or deletes rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	contextRaw, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("audit: encode context: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, type, user_id, feature, result, reason, context, policies, ip, user_agent, country, region, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.Type, entry.UserID, entry.Feature, entry.Result, entry.Reason,
		contextRaw, entry.Policies, entry.IP, entry.UserAgent, entry.Country, entry.Region, entry.Timestamp)
	return err
}

// Window returns one page of entries matching the filters, newest first. The
// caller passes limit = pageSize+1 to detect a next page.
func (r *Repository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, user_id, feature, result, reason, context, policies,
		       COALESCE(ip, ''), COALESCE(user_agent, ''), COALESCE(country, ''), COALESCE(region, ''), occurred_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		  AND ($3 = '' OR user_id = $3)
		  AND ($4 = '' OR feature = $4)
		  AND ($5 = '' OR result = $5)
		ORDER BY occurred_at DESC
		OFFSET $6 LIMIT $7`,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.UserID, filters.Feature, filters.Result, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			contextRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Type, &entry.UserID, &entry.Feature, &entry.Result, &entry.Reason,
			&contextRaw, &entry.Policies, &entry.IP, &entry.UserAgent, &entry.Country, &entry.Region, &entry.Timestamp); err != nil {
			return nil, err
		}
		if len(contextRaw) > 0 {
			if err := json.Unmarshal(contextRaw, &entry.Context); err != nil {
				return nil, fmt.Errorf("audit: decode context for %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
