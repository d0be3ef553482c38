package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/duochat/internal/convo"
)

// PersistMessage stores a message from m.SenderID to m.RecipientID. With a
// zero ConversationID the pair's conversation is looked up and created if it
// does not exist yet; the returned delivery carries the sender only when the
// conversation was created. Validation failures are rejected, database
// failures retryable.
func (db *DB) PersistMessage(ctx context.Context, m convo.OutgoingMessage) (convo.Delivery, error) {
	const op = "persist message"
	if strings.TrimSpace(m.Text) == "" {
		return convo.Delivery{}, convo.Rejected(op, errors.New("empty text"))
	}
	if m.SenderID == m.RecipientID {
		return convo.Delivery{}, convo.Rejected(op, fmt.Errorf("message to self: %w", ErrNotParticipant))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return convo.Delivery{}, convo.Retryable(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	sender, err := lookupUser(ctx, tx, m.SenderID)
	if err != nil {
		return convo.Delivery{}, classify(op, err)
	}
	if _, err := lookupUser(ctx, tx, m.RecipientID); err != nil {
		return convo.Delivery{}, classify(op, err)
	}

	lo, hi := orderedPair(m.SenderID, m.RecipientID)
	now := time.Now().UnixMilli()
	convID := m.ConversationID
	created := false

	if convID != 0 {
		u1, u2, err := participants(ctx, tx, convID)
		if err != nil {
			return convo.Delivery{}, classify(op, err)
		}
		if u1 != lo || u2 != hi {
			return convo.Delivery{}, convo.Rejected(op, ErrNotParticipant)
		}
	} else {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM conversations WHERE user1_id = ? AND user2_id = ?`, lo, hi).Scan(&convID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, `
				INSERT INTO conversations (user1_id, user2_id, created_at, updated_at)
				VALUES (?, ?, ?, ?)`, lo, hi, now, now)
			if err != nil {
				return convo.Delivery{}, convo.Retryable(op, err)
			}
			if convID, err = res.LastInsertId(); err != nil {
				return convo.Delivery{}, convo.Retryable(op, err)
			}
			created = true
		case err != nil:
			return convo.Delivery{}, convo.Retryable(op, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, text, created_at)
		VALUES (?, ?, ?, ?)`, convID, m.SenderID, m.Text, now)
	if err != nil {
		return convo.Delivery{}, convo.Retryable(op, err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return convo.Delivery{}, convo.Retryable(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, convID); err != nil {
		return convo.Delivery{}, convo.Retryable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return convo.Delivery{}, convo.Retryable(op, err)
	}

	d := convo.Delivery{Message: convo.Message{
		ID:             msgID,
		ConversationID: convID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		CreatedAt:      time.UnixMilli(now),
	}}
	if created {
		d.Sender = sender
	}
	return d, nil
}

// PersistReadWatermark marks messageIDs of conversationID read on behalf of
// readerID. Only messages the reader received are touched; ids outside the
// conversation are ignored.
func (db *DB) PersistReadWatermark(ctx context.Context, readerID, conversationID int64, messageIDs []int64) error {
	const op = "persist read watermark"
	if len(messageIDs) == 0 {
		return nil
	}
	u1, u2, err := participants(ctx, db, conversationID)
	if err != nil {
		return classify(op, err)
	}
	if readerID != u1 && readerID != u2 {
		return convo.Rejected(op, ErrNotParticipant)
	}

	args := make([]any, 0, len(messageIDs)+2)
	args = append(args, conversationID, readerID)
	for _, id := range messageIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	_, err = db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id != ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return convo.Retryable(op, err)
	}
	return nil
}

func lookupUser(ctx context.Context, q querier, id int64) (*convo.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT id, username, photo_url FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrUnknownUser)
	}
	return u, nil
}

// classify marks domain violations rejected and everything else retryable.
func classify(op string, err error) error {
	if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrNotParticipant) {
		return convo.Rejected(op, err)
	}
	return convo.Retryable(op, err)
}
