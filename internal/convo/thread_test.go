package convo

import (
	"errors"
	"fmt"
	"testing"
)

const self = int64(1)

func msg(id, sender int64, text string) Message {
	return Message{ID: id, ConversationID: 42, SenderID: sender, Text: text}
}

// checkInvariants recomputes the aggregates from scratch and compares them
// with what the conversation currently reports.
func checkInvariants(t *testing.T, c *Conversation) {
	t.Helper()
	unread, last := 0, -1
	for i, m := range c.Messages {
		if m.SenderID != self && !m.Read {
			unread++
		}
		if m.SenderID == self && m.Read {
			last = i
		}
	}
	if c.Unread != unread {
		t.Errorf("Unread = %d, want %d", c.Unread, unread)
	}
	if c.OtherUserLastReadIndex != last {
		t.Errorf("OtherUserLastReadIndex = %d, want %d", c.OtherUserLastReadIndex, last)
	}
}

func TestAppendPreservesArrivalOrder(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	c.Append(msg(20, 7, "second id, first arrival"))
	c.Append(msg(10, 7, "first id, second arrival"))
	c.Recompute(self)

	if len(c.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(c.Messages))
	}
	if c.Messages[0].ID != 20 || c.Messages[1].ID != 10 {
		t.Errorf("order = [%d %d], want [20 10]", c.Messages[0].ID, c.Messages[1].ID)
	}
	if c.LatestMessageText != "first id, second arrival" {
		t.Errorf("LatestMessageText = %q", c.LatestMessageText)
	}
	checkInvariants(t, c)
}

func TestAppendIgnoresRedelivery(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	if !c.Append(msg(1, 7, "hi")) {
		t.Fatal("first Append() = false, want true")
	}
	if c.Append(msg(1, 7, "hi")) {
		t.Error("second Append() = true, want false for duplicate id")
	}
	c.Recompute(self)
	if len(c.Messages) != 1 || c.Unread != 1 {
		t.Errorf("messages=%d unread=%d, want 1/1", len(c.Messages), c.Unread)
	}
}

func TestMarkReadIgnoresUnknownIDs(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	c.Append(msg(1, 7, "a"))
	c.Append(msg(2, 7, "b"))

	n := c.MarkRead(NewIDSet(2, 99))
	if n != 1 {
		t.Errorf("MarkRead() = %d, want 1", n)
	}
	if n := c.MarkRead(NewIDSet(2)); n != 0 {
		t.Errorf("repeated MarkRead() = %d, want 0", n)
	}
	c.Recompute(self)
	if c.Unread != 1 {
		t.Errorf("Unread = %d, want 1", c.Unread)
	}
	checkInvariants(t, c)
}

func TestMarkReadFromOnlyTouchesSender(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	c.Append(msg(1, self, "mine"))
	c.Append(msg(2, 7, "theirs"))
	c.Append(msg(3, self, "mine again"))

	n := c.MarkReadFrom(self, NewIDSet(1, 2, 3))
	if n != 2 {
		t.Errorf("MarkReadFrom() = %d, want 2", n)
	}
	c.Recompute(self)
	if c.Messages[1].Read {
		t.Error("inbound message was marked read by own-message receipt")
	}
	if c.OtherUserLastReadIndex != 2 {
		t.Errorf("OtherUserLastReadIndex = %d, want 2", c.OtherUserLastReadIndex)
	}
	if c.Unread != 1 {
		t.Errorf("Unread = %d, want 1", c.Unread)
	}
}

func TestMarkReadThrough(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	c.Append(msg(1, self, "a"))
	c.Append(msg(2, self, "b"))
	c.Append(msg(3, 7, "c"))
	c.Append(msg(4, self, "d"))

	if n := c.MarkReadThrough(self, 2); n != 2 {
		t.Errorf("MarkReadThrough() = %d, want 2", n)
	}
	c.Recompute(self)
	if c.OtherUserLastReadIndex != 1 {
		t.Errorf("OtherUserLastReadIndex = %d, want 1", c.OtherUserLastReadIndex)
	}
	checkInvariants(t, c)
}

func TestRecomputeIdempotent(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	for i := int64(1); i <= 6; i++ {
		sender := int64(7)
		if i%2 == 0 {
			sender = self
		}
		c.Append(msg(i, sender, fmt.Sprintf("m%d", i)))
	}
	c.MarkRead(NewIDSet(1, 2, 4))

	c.Recompute(self)
	first := *c
	c.Recompute(self)
	if c.Unread != first.Unread || c.OtherUserLastReadIndex != first.OtherUserLastReadIndex {
		t.Errorf("second Recompute changed aggregates: %d/%d -> %d/%d",
			first.Unread, first.OtherUserLastReadIndex, c.Unread, c.OtherUserLastReadIndex)
	}
	if c.Unread != 2 || c.OtherUserLastReadIndex != 3 {
		t.Errorf("unread=%d last=%d, want 2/3", c.Unread, c.OtherUserLastReadIndex)
	}
}

func TestEmptyConversationAggregates(t *testing.T) {
	c := NewConversation(0, User{ID: 7})
	c.Recompute(self)
	if c.Unread != 0 || c.OtherUserLastReadIndex != -1 {
		t.Errorf("unread=%d last=%d, want 0/-1", c.Unread, c.OtherUserLastReadIndex)
	}
	if _, ok := c.Newest(); ok {
		t.Error("Newest() ok = true on empty conversation")
	}
}

func TestUnreadIDs(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	c.Append(msg(1, 7, "a"))
	c.Append(msg(2, self, "b"))
	c.Append(msg(3, 7, "c"))
	c.MarkRead(NewIDSet(1))

	got := c.UnreadIDs(self)
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("UnreadIDs() = %v, want [3]", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := NewConversation(42, User{ID: 7})
	c.Append(msg(1, 7, "a"))

	view := c.Clone()
	view.Messages[0].Read = true
	view.Messages = append(view.Messages, msg(2, 7, "b"))

	if c.Messages[0].Read || len(c.Messages) != 1 {
		t.Error("mutating a clone changed the original")
	}
}

func TestClassify(t *testing.T) {
	cause := errors.New("disk full")

	err := Classify("persist", cause)
	if !errors.Is(err, ErrRetryable) || !errors.Is(err, cause) {
		t.Errorf("Classify(plain) = %v, want retryable wrapping cause", err)
	}

	rejected := Rejected("persist", cause)
	if got := Classify("persist", fmt.Errorf("wrapped: %w", rejected)); !errors.Is(got, ErrRejected) || errors.Is(got, ErrRetryable) {
		t.Errorf("Classify(rejected) = %v, must stay rejected", got)
	}

	if Classify("persist", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}
