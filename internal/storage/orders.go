package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quickdeliver/qdsupport/internal/orders"
)

const orderColumns = `id, order_number, restaurant, items_json, total, status, order_date`

// SaveOrder stores an order for username and returns it with generated
// fields filled in: ID, order number, date (today) and status (Pending).
func (s *Store) SaveOrder(username string, o orders.Order) (orders.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Number == "" {
		o.Number = "QD" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	}
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	if o.Date == "" {
		o.Date = time.Now().UTC().Format(orders.DateLayout)
	}
	items := o.Items
	if items == nil {
		items = []orders.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return orders.Order{}, fmt.Errorf("marshalling items: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO orders (id, username, order_number, restaurant, items_json, total, status, order_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, username, o.Number, o.Restaurant, string(itemsJSON), o.Total, string(o.Status), o.Date, formatTime(time.Now()),
	)
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// ListOrders returns the orders of username, oldest first.
func (s *Store) ListOrders(username string) ([]orders.Order, error) {
	return s.queryOrders(context.Background(), `SELECT `+orderColumns+` FROM orders WHERE username = ? ORDER BY order_date ASC, rowid ASC`, username)
}

// RecentOrders returns up to limit orders of username, newest first.
func (s *Store) RecentOrders(username string, limit int) ([]orders.Order, error) {
	return s.queryOrders(context.Background(), `SELECT `+orderColumns+` FROM orders WHERE username = ? ORDER BY order_date DESC, rowid DESC LIMIT ?`, username, limit)
}

// GetOrder looks up an order of username by its order number.
func (s *Store) GetOrder(username, number string) (orders.Order, error) {
	o, err := scanOrder(s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE username = ? AND order_number = ?`, username, number))
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, ErrNotFound
	}
	return o, err
}

// LoadHistory implements recommend.HistorySource. Users appear in creation
// order followed by any order owners without a user record.
func (s *Store) LoadHistory(ctx context.Context) (*orders.History, error) {
	h := orders.NewHistory()

	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, err
		}
		h.Add(u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT username, `+orderColumns+` FROM orders ORDER BY order_date ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			username  string
			o         orders.Order
			itemsJSON string
			status    string
		)
		if err := rows.Scan(&username, &o.ID, &o.Number, &o.Restaurant, &itemsJSON, &o.Total, &status, &o.Date); err != nil {
			return nil, err
		}
		o.Status = orders.Status(status)
		o.Items = decodeItems(o.ID, itemsJSON)
		h.Add(username, o)
	}
	return h, rows.Err()
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(r rowScanner) (orders.Order, error) {
	var o orders.Order
	var itemsJSON, status string
	if err := r.Scan(&o.ID, &o.Number, &o.Restaurant, &itemsJSON, &o.Total, &status, &o.Date); err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	o.Items = decodeItems(o.ID, itemsJSON)
	return o, nil
}

// decodeItems tolerates malformed item lists; the order itself is still usable.
func decodeItems(id, raw string) []orders.Item {
	var items []orders.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Warn("malformed order items, skipping", "order_id", id, "error", err)
		return nil
	}
	return items
}
