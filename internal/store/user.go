package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/duochat/internal/convo"
)

// EnsureUser returns the user named username, creating it on first use.
func (db *DB) EnsureUser(ctx context.Context, username string) (convo.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return convo.User{}, ErrInvalidUsername
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (username, created_at) VALUES (?, ?)
		ON CONFLICT(username) DO NOTHING`,
		username, time.Now().UnixMilli())
	if err != nil {
		return convo.User{}, err
	}
	u, err := db.UserByName(ctx, username)
	if err != nil {
		return convo.User{}, err
	}
	if u == nil {
		return convo.User{}, ErrUnknownUser
	}
	return *u, nil
}

// GetUser returns a user by id, or nil if it does not exist.
func (db *DB) GetUser(ctx context.Context, id int64) (*convo.User, error) {
	return scanUser(db.QueryRowContext(ctx,
		`SELECT id, username, photo_url FROM users WHERE id = ?`, id))
}

// UserByName returns a user by username, or nil if it does not exist.
func (db *DB) UserByName(ctx context.Context, username string) (*convo.User, error) {
	return scanUser(db.QueryRowContext(ctx,
		`SELECT id, username, photo_url FROM users WHERE username = ?`, username))
}

func scanUser(row *sql.Row) (*convo.User, error) {
	var u convo.User
	err := row.Scan(&u.ID, &u.Username, &u.PhotoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchUsers returns users whose username contains query, excluding
// excludeID, ordered by username.
func (db *DB) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]convo.User, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, username, photo_url
		FROM users
		WHERE username LIKE '%' || ? || '%' ESCAPE '\' AND id != ?
		ORDER BY username
		LIMIT ?`, escapeLike(query), excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []convo.User
	for rows.Next() {
		var u convo.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PhotoURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
