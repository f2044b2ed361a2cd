package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickdeliver/qdsupport/internal/orders"
)

// PGHistory reads order history from the PostgreSQL database shared with the
// ordering frontend (users and orders tables keyed by user UUID).
type PGHistory struct {
	pool *pgxpool.Pool
}

// OpenPGHistory connects to dsn and verifies the connection.
func OpenPGHistory(ctx context.Context, dsn string) (*PGHistory, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PGHistory{pool: pool}, nil
}

func (p *PGHistory) Close() {
	p.pool.Close()
}

const pgHistoryQuery = `
	SELECT u.username, o.id::text, o.order_number, o.restaurant, o.items::text, o.total::float8, o.status, o.created_at
	FROM users u
	LEFT JOIN orders o ON o.user_id = u.id
	ORDER BY u.created_at ASC, u.username ASC, o.created_at ASC NULLS LAST`

// LoadHistory implements recommend.HistorySource.
func (p *PGHistory) LoadHistory(ctx context.Context) (*orders.History, error) {
	rows, err := p.pool.Query(ctx, pgHistoryQuery)
	if err != nil {
		return nil, fmt.Errorf("querying order history: %w", err)
	}
	defer rows.Close()

	h := orders.NewHistory()
	for rows.Next() {
		var (
			username   string
			id, number *string
			restaurant *string
			items      *string
			total      *float64
			status     *string
			createdAt  *time.Time
		)
		if err := rows.Scan(&username, &id, &number, &restaurant, &items, &total, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		if id == nil {
			h.Add(username)
			continue
		}
		o := orders.Order{
			ID:         *id,
			Number:     deref(number),
			Restaurant: deref(restaurant),
			Status:     orders.Status(deref(status)),
		}
		if total != nil {
			o.Total = *total
		}
		if createdAt != nil {
			o.Date = createdAt.UTC().Format(orders.DateLayout)
		}
		if items != nil {
			var its []orders.Item
			if err := json.Unmarshal([]byte(*items), &its); err == nil {
				o.Items = its
			}
		}
		h.Add(username, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
