package storage

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertUser creates or updates a user. CreatedAt is kept from the first insert.
func (s *Store) UpsertUser(u User) error {
	if u.Subscription == "" {
		u.Subscription = "Basic"
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO users (username, name, email, subscription, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET name = excluded.name, email = excluded.email, subscription = excluded.subscription`,
		u.Username, u.Name, u.Email, u.Subscription, formatTime(created),
	)
	return err
}

func (s *Store) GetUser(username string) (User, error) {
	u, err := scanUser(s.db.QueryRow(`
		SELECT username, name, email, subscription, created_at FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// ListUsers returns users in the order they were created.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT username, name, email, subscription, created_at FROM users ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(r rowScanner) (User, error) {
	var u User
	var createdAt string
	if err := r.Scan(&u.Username, &u.Name, &u.Email, &u.Subscription, &createdAt); err != nil {
		return User{}, err
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = t
	return u, nil
}
