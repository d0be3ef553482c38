package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/duochat/internal/convo"
)

// FetchConversationSnapshot returns every conversation of userID, most
// recently active first, each with its messages newest first.
func (db *DB) FetchConversationSnapshot(ctx context.Context, userID int64) ([]convo.Conversation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, u.id, u.username, u.photo_url
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user1_id = ? THEN c.user2_id ELSE c.user1_id END
		WHERE c.user1_id = ? OR c.user2_id = ?
		ORDER BY c.updated_at DESC, c.id DESC`, userID, userID, userID)
	if err != nil {
		return nil, convo.Retryable("fetch conversations", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []convo.Conversation
	pos := make(map[int64]int)
	for rows.Next() {
		var c convo.Conversation
		if err := rows.Scan(&c.ID, &c.OtherUser.ID, &c.OtherUser.Username, &c.OtherUser.PhotoURL); err != nil {
			return nil, convo.Retryable("fetch conversations", err)
		}
		c.OtherUserLastReadIndex = -1
		pos[c.ID] = len(convs)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, convo.Retryable("fetch conversations", err)
	}
	if len(convs) == 0 {
		return nil, nil
	}

	msgs, err := db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.text, m.is_read, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user1_id = ? OR c.user2_id = ?
		ORDER BY m.id DESC`, userID, userID)
	if err != nil {
		return nil, convo.Retryable("fetch messages", err)
	}
	defer func() { _ = msgs.Close() }()

	for msgs.Next() {
		var (
			m         convo.Message
			createdAt int64
		)
		if err := msgs.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Read, &createdAt); err != nil {
			return nil, convo.Retryable("fetch messages", err)
		}
		m.CreatedAt = time.UnixMilli(createdAt)
		i, ok := pos[m.ConversationID]
		if !ok {
			continue
		}
		c := &convs[i]
		if len(c.Messages) == 0 {
			c.LatestMessageText = m.Text
		}
		c.Messages = append(c.Messages, m)
		if m.SenderID != userID && !m.Read {
			c.Unread++
		}
	}
	if err := msgs.Err(); err != nil {
		return nil, convo.Retryable("fetch messages", err)
	}
	return convs, nil
}

// participants returns the two user ids of a conversation, smaller first.
func participants(ctx context.Context, q querier, conversationID int64) (int64, int64, error) {
	var u1, u2 int64
	err := q.QueryRowContext(ctx,
		`SELECT user1_id, user2_id FROM conversations WHERE id = ?`, conversationID).Scan(&u1, &u2)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("conversation %d: %w", conversationID, ErrNotParticipant)
	}
	return u1, u2, err
}

func orderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
