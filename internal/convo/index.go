package convo

// Index is the ordered conversation list of one user, most recent first.
// It is not safe for concurrent use; the sync engine guards it.
type Index struct {
	self  int64
	convs []*Conversation
}

// NewIndex creates an empty index for the user with id self.
func NewIndex(self int64) *Index {
	return &Index{self: self}
}

// Seed converts a conversation as stored (messages newest first) into an
// index entry with chronological messages and fresh aggregates.
func Seed(stored Conversation, self int64) *Conversation {
	c := stored
	c.Messages = reverseMessages(stored.Messages)
	c.Recompute(self)
	return &c
}

// Len returns the number of conversations.
func (x *Index) Len() int {
	return len(x.convs)
}

// All returns the live entries in list order. Callers must hold the owner's
// lock and must not retain the slice.
func (x *Index) All() []*Conversation {
	return x.convs
}

// ByID returns the persisted conversation with the given id.
func (x *Index) ByID(id int64) *Conversation {
	if id == 0 {
		return nil
	}
	for _, c := range x.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ByOtherUser returns the conversation with the given participant, persisted
// or provisional.
func (x *Index) ByOtherUser(userID int64) *Conversation {
	for _, c := range x.convs {
		if c.OtherUser.ID == userID {
			return c
		}
	}
	return nil
}

// Provisional returns the provisional conversation with the given participant.
func (x *Index) Provisional(userID int64) *Conversation {
	for _, c := range x.convs {
		if c.Provisional() && c.OtherUser.ID == userID {
			return c
		}
	}
	return nil
}

// ByUsername returns the conversation whose other participant has the given
// display name.
func (x *Index) ByUsername(name string) *Conversation {
	if name == "" {
		return nil
	}
	for _, c := range x.convs {
		if c.OtherUser.Username == name {
			return c
		}
	}
	return nil
}

// Prepend inserts c at the head of the list.
func (x *Index) Prepend(c *Conversation) {
	x.convs = append([]*Conversation{c}, x.convs...)
}

// Push inserts c at the tail of the list.
func (x *Index) Push(c *Conversation) {
	x.convs = append(x.convs, c)
}

// Promote assigns the persisted id to a provisional conversation in place,
// keeping its position in the list. It returns false if c is not provisional
// or another conversation already holds id.
func (x *Index) Promote(c *Conversation, id int64) bool {
	if !c.Provisional() || id == 0 || x.ByID(id) != nil {
		return false
	}
	c.ID = id
	for i := range c.Messages {
		if c.Messages[i].ConversationID == 0 {
			c.Messages[i].ConversationID = id
		}
	}
	return true
}

// Replace swaps the whole list.
func (x *Index) Replace(convs []*Conversation) {
	x.convs = convs
}

// RemoveIf drops every conversation for which drop returns true and returns
// how many were removed.
func (x *Index) RemoveIf(drop func(*Conversation) bool) int {
	kept := x.convs[:0]
	n := 0
	for _, c := range x.convs {
		if drop(c) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	clear(x.convs[len(kept):])
	x.convs = kept
	return n
}

// Snapshot returns deep copies of every conversation in list order.
func (x *Index) Snapshot() []Conversation {
	out := make([]Conversation, 0, len(x.convs))
	for _, c := range x.convs {
		out = append(out, c.Clone())
	}
	return out
}

// UnreadTotal sums unread counts across all conversations.
func (x *Index) UnreadTotal() int {
	n := 0
	for _, c := range x.convs {
		n += c.Unread
	}
	return n
}
