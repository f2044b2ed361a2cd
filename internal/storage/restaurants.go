package storage

import (
	"context"
	"fmt"

	"github.com/quickdeliver/qdsupport/internal/catalog"
)

// UpsertRestaurant adds a restaurant at the end of the catalog, or updates it
// in place if the name exists.
func (s *Store) UpsertRestaurant(r catalog.Restaurant) error {
	_, err := s.db.Exec(`
		INSERT INTO restaurants (name, cuisine, rating, delivery_time, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM restaurants))
		ON CONFLICT(name) DO UPDATE SET cuisine = excluded.cuisine, rating = excluded.rating, delivery_time = excluded.delivery_time`,
		r.Name, r.Cuisine, r.Rating, r.DeliveryTime,
	)
	return err
}

// SeedCatalog inserts restaurants when the catalog is empty. It returns the
// number of restaurants inserted.
func (s *Store) SeedCatalog(restaurants []catalog.Restaurant) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM restaurants`).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	for i, r := range restaurants {
		if _, err := tx.Exec(`INSERT INTO restaurants (name, cuisine, rating, delivery_time, position) VALUES (?, ?, ?, ?, ?)`,
			r.Name, r.Cuisine, r.Rating, r.DeliveryTime, i+1); err != nil {
			return 0, fmt.Errorf("seeding %q: %w", r.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed: %w", err)
	}
	return len(restaurants), nil
}

// ListRestaurants returns the catalog in position order.
func (s *Store) ListRestaurants() ([]catalog.Restaurant, error) {
	return s.listRestaurants(context.Background())
}

// LoadCatalog implements recommend.CatalogSource.
func (s *Store) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	rs, err := s.listRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(rs), nil
}

func (s *Store) listRestaurants(ctx context.Context) ([]catalog.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, cuisine, rating, delivery_time FROM restaurants ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Restaurant
	for rows.Next() {
		var r catalog.Restaurant
		if err := rows.Scan(&r.Name, &r.Cuisine, &r.Rating, &r.DeliveryTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
