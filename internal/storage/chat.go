package storage

import (
	"database/sql"
	"errors"
	"time"
)

// SaveChatSession inserts or replaces the snapshot of a chat session.
func (s *Store) SaveChatSession(cs ChatSession) error {
	now := time.Now()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_sessions (id, username, state_json, message_count, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state_json = excluded.state_json,
			message_count = excluded.message_count,
			summary = excluded.summary,
			updated_at = excluded.updated_at`,
		cs.ID, cs.Username, cs.StateJSON, cs.MessageCount, cs.Summary, formatTime(cs.CreatedAt), formatTime(now),
	)
	return err
}

// GetChatSession loads the snapshot of one session.
func (s *Store) GetChatSession(id string) (ChatSession, error) {
	var cs ChatSession
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, username, state_json, message_count, summary, created_at, updated_at
		FROM chat_sessions WHERE id = ?`, id).
		Scan(&cs.ID, &cs.Username, &cs.StateJSON, &cs.MessageCount, &cs.Summary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSession{}, ErrNotFound
	}
	if err != nil {
		return ChatSession{}, err
	}
	if cs.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return ChatSession{}, err
	}
	if cs.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return ChatSession{}, err
	}
	return cs, nil
}

// ListChatSessions returns up to limit sessions of username, most recently
// updated first.
func (s *Store) ListChatSessions(username string, limit int) ([]ChatSession, error) {
	rows, err := s.db.Query(`
		SELECT id, username, state_json, message_count, summary, created_at, updated_at
		FROM chat_sessions WHERE username = ? ORDER BY updated_at DESC, rowid DESC LIMIT ?`, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSession
	for rows.Next() {
		var cs ChatSession
		var createdAt, updatedAt string
		if err := rows.Scan(&cs.ID, &cs.Username, &cs.StateJSON, &cs.MessageCount, &cs.Summary, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if cs.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if cs.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// DeleteChatSessions removes the chat history of username.
func (s *Store) DeleteChatSessions(username string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM chat_sessions WHERE username = ?`, username)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
