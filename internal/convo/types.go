package convo

import "time"

// User is a chat participant. Online is the only mutable field.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	PhotoURL string `json:"photoUrl"`
	Online   bool   `json:"online"`
}

// Message is a single text message. ID and ConversationID are zero until the
// backing store has persisted the message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
	Read           bool      `json:"read"`
}

// Conversation is a two-party conversation as seen by one user.
//
// Unread and OtherUserLastReadIndex are derived from Messages by Recompute and
// must never be assigned directly.
type Conversation struct {
	ID                     int64     `json:"id"`
	OtherUser              User      `json:"otherUser"`
	Messages               []Message `json:"messages"`
	LatestMessageText      string    `json:"latestMessageText"`
	Unread                 int       `json:"unread"`
	OtherUserLastReadIndex int       `json:"otherUserLastReadIndex"`
}

// Provisional reports whether the conversation exists only locally.
func (c *Conversation) Provisional() bool {
	return c.ID == 0
}

// Delivery is the result of persisting a message and the payload of a
// new-message push event. Sender is set only when the store had to create the
// conversation, which tells the receiving side to build a new conversation.
type Delivery struct {
	Message Message `json:"message"`
	Sender  *User   `json:"sender,omitempty"`
}

// OutgoingMessage is a send request handed to the backing store.
// ConversationID is zero when no conversation exists yet.
type OutgoingMessage struct {
	SenderID       int64
	RecipientID    int64
	ConversationID int64
	Text           string
}

// IDSet is a set of message ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids, skipping zero ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if id != 0 {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}
