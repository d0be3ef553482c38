package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session scopes the shared database to one session user. It satisfies the
// sync engine's store and checkpoint contracts.
type Session struct {
	*DB
	UserID int64
}

// Session returns the view of db for userID.
func (db *DB) Session(userID int64) *Session {
	return &Session{DB: db, UserID: userID}
}

// UpdateCheckpoint stores a sync checkpoint for the session user.
func (s *Session) UpdateCheckpoint(key, value string) error {
	_, err := s.Exec(`
		INSERT INTO sync_state (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.UserID, key, value, time.Now().UnixMilli())
	return err
}

// GetCheckpoint returns a sync checkpoint of the session user, or "" if unset.
func (s *Session) GetCheckpoint(key string) (string, error) {
	var value string
	err := s.QueryRow(`SELECT value FROM sync_state WHERE user_id = ? AND key = ?`, s.UserID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
