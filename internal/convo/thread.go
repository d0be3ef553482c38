package convo

// NewConversation returns an empty conversation with the given other
// participant. A zero id makes it provisional.
func NewConversation(id int64, other User) *Conversation {
	return &Conversation{
		ID:                     id,
		OtherUser:              other,
		OtherUserLastReadIndex: -1,
	}
}

// Append adds m at the tail. A message whose non-zero id is already present
// is a redelivery and is ignored; Append then returns false.
func (c *Conversation) Append(m Message) bool {
	if m.ID != 0 && c.indexOf(m.ID) >= 0 {
		return false
	}
	c.Messages = append(c.Messages, m)
	c.LatestMessageText = m.Text
	return true
}

// MarkRead flags every message whose id is in ids as read. Ids that are not
// in the conversation are ignored. Returns the number of flags flipped.
func (c *Conversation) MarkRead(ids IDSet) int {
	return c.markRead(ids, func(Message) bool { return true })
}

// MarkReadFrom is MarkRead restricted to messages sent by senderID.
func (c *Conversation) MarkReadFrom(senderID int64, ids IDSet) int {
	return c.markRead(ids, func(m Message) bool { return m.SenderID == senderID })
}

// MarkReadThrough flags messages sent by senderID at or before index as read.
func (c *Conversation) MarkReadThrough(senderID int64, index int) int {
	n := 0
	for i := 0; i <= index && i < len(c.Messages); i++ {
		m := &c.Messages[i]
		if m.SenderID == senderID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n
}

func (c *Conversation) markRead(ids IDSet, match func(Message) bool) int {
	if len(ids) == 0 {
		return 0
	}
	n := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if !m.Read && ids.Has(m.ID) && match(*m) {
			m.Read = true
			n++
		}
	}
	return n
}

// UnreadIDs returns the ids of unread messages not sent by self, oldest first.
func (c *Conversation) UnreadIDs(self int64) []int64 {
	var ids []int64
	for _, m := range c.Messages {
		if m.SenderID != self && !m.Read && m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Recompute derives Unread and OtherUserLastReadIndex from the messages.
func (c *Conversation) Recompute(self int64) {
	c.Unread = 0
	c.OtherUserLastReadIndex = -1
	for i, m := range c.Messages {
		switch {
		case m.SenderID != self && !m.Read:
			c.Unread++
		case m.SenderID == self && m.Read:
			c.OtherUserLastReadIndex = i
		}
	}
	if n := len(c.Messages); n > 0 {
		c.LatestMessageText = c.Messages[n-1].Text
	}
}

// Newest returns the last message and true, or false if there are none.
func (c *Conversation) Newest() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Has reports whether a message with the given id is present.
func (c *Conversation) Has(id int64) bool {
	return id != 0 && c.indexOf(id) >= 0
}

// Clone returns a deep copy safe to hand to readers.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// reverseMessages flips newest-first storage order into chronological order.
func reverseMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

func (c *Conversation) indexOf(id int64) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}
