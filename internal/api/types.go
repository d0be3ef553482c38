package api

import "github.com/matheus3301/duochat/internal/convo"

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session            string `json:"session"`
	UserID             int64  `json:"userId"`
	Username           string `json:"username"`
	Status             string `json:"status"`
	StatusSinceUnixMs  int64  `json:"statusSinceUnixMs"`
	UptimeMs           int64  `json:"uptimeMs"`
	ConversationCount  int    `json:"conversationCount"`
	UnreadTotal        int    `json:"unreadTotal"`
	PendingOrphans     int    `json:"pendingOrphans"`
	LastSnapshotUnixMs int64  `json:"lastSnapshotUnixMs,omitempty"`
	Active             string `json:"active,omitempty"`
}

type Message struct {
	ID              int64  `json:"id"`
	ConversationID  int64  `json:"conversationId"`
	SenderID        int64  `json:"senderId"`
	Text            string `json:"text"`
	CreatedAtUnixMs int64  `json:"createdAtUnixMs"`
	Read            bool   `json:"read"`
	FromMe          bool   `json:"fromMe"`
}

type Conversation struct {
	ID                     int64     `json:"id"`
	Provisional            bool      `json:"provisional,omitempty"`
	OtherUserID            int64     `json:"otherUserId"`
	OtherUsername          string    `json:"otherUsername"`
	PhotoURL               string    `json:"photoUrl,omitempty"`
	Online                 bool      `json:"online"`
	LatestMessageText      string    `json:"latestMessageText"`
	Unread                 int       `json:"unread"`
	OtherUserLastReadIndex int       `json:"otherUserLastReadIndex"`
	Messages               []Message `json:"messages,omitempty"`
}

type ListConversationsRequest struct {
	IncludeMessages bool `json:"includeMessages,omitempty"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	UnreadTotal   int            `json:"unreadTotal"`
}

type OpenConversationRequest struct {
	Username string `json:"username"`
}

type OpenConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

type CloseConversationRequest struct{}

type CloseConversationResponse struct {
	Closed string `json:"closed,omitempty"`
}

type SendMessageRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

type SendMessageResponse struct {
	Message Message `json:"message"`
}

type SearchUsersRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchUsersResponse struct {
	Users []convo.User `json:"users"`
	Added int         `json:"added"`
}

type ClearSearchRequest struct{}

type ClearSearchResponse struct {
	Removed int `json:"removed"`
}

type WatchUpdatesRequest struct{}

// UpdateEvent is one item of the WatchUpdates stream. Conversation fields are
// set for conversation.* kinds, Status for session.status_changed.
type UpdateEvent struct {
	EventID          string `json:"eventId"`
	Session          string `json:"session"`
	OccurredAtUnixMs int64  `json:"occurredAtUnixMs"`
	Kind             string `json:"kind"`
	ConversationID   int64  `json:"conversationId,omitempty"`
	OtherUserID      int64  `json:"otherUserId,omitempty"`
	Status           string `json:"status,omitempty"`
}

func conversationToAPI(c convo.Conversation, self int64, withMessages bool) Conversation {
	out := Conversation{
		ID:                     c.ID,
		Provisional:            c.Provisional(),
		OtherUserID:            c.OtherUser.ID,
		OtherUsername:          c.OtherUser.Username,
		PhotoURL:               c.OtherUser.PhotoURL,
		Online:                 c.OtherUser.Online,
		LatestMessageText:      c.LatestMessageText,
		Unread:                 c.Unread,
		OtherUserLastReadIndex: c.OtherUserLastReadIndex,
	}
	if withMessages {
		out.Messages = make([]Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			out.Messages = append(out.Messages, messageToAPI(m, self))
		}
	}
	return out
}

func messageToAPI(m convo.Message, self int64) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Read:           m.Read,
		FromMe:         m.SenderID == self,
	}
	if !m.CreatedAt.IsZero() {
		out.CreatedAtUnixMs = m.CreatedAt.UnixMilli()
	}
	return out
}
