package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/duochat/internal/bus"
	"github.com/matheus3301/duochat/internal/convo"
	"github.com/matheus3301/duochat/internal/feed"
	"github.com/matheus3301/duochat/internal/status"
	"go.uber.org/zap"
)

// Store is the persistence collaborator.
type Store interface {
	// FetchConversationSnapshot returns the user's conversations in server
	// order, each with its messages newest first.
	FetchConversationSnapshot(ctx context.Context, userID int64) ([]convo.Conversation, error)
	// PersistMessage stores a message, creating the conversation when
	// m.ConversationID is zero. Sender is set only in that case.
	PersistMessage(ctx context.Context, m convo.OutgoingMessage) (convo.Delivery, error)
	// PersistReadWatermark marks messageIDs of conversationID read on behalf
	// of readerID.
	PersistReadWatermark(ctx context.Context, readerID, conversationID int64, messageIDs []int64) error
}

// Emitter sends an event to another user over the push channel.
type Emitter interface {
	Emit(ctx context.Context, to int64, kind feed.Kind, payload any) error
}

// Update is the payload of conversation.updated bus events.
type Update struct {
	ConversationID int64
	OtherUserID    int64
}

// Engine owns the conversation index of one user session. Every mutation of
// the index goes through it and runs under its mutex; persistence and push
// calls are made with the mutex released.
type Engine struct {
	self    convo.User
	store   Store
	emitter Emitter
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu         sync.Mutex
	index      *convo.Index
	recon      *Reconciler
	active     string
	generation uint64
	// online is the last presence seen per user, applied to conversations
	// created after the event arrived.
	online map[int64]bool

	cancel context.CancelFunc
}

// NewEngine creates the engine for the session user self. If st also
// implements Checkpointer, snapshot checkpoints are recorded through it.
// b and m may be nil.
func NewEngine(self convo.User, st Store, em Emitter, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cp, _ := st.(Checkpointer)
	return &Engine{
		self:    self,
		store:   st,
		emitter: em,
		bus:     b,
		machine: m,
		logger:  logger,
		index:   convo.NewIndex(self.ID),
		recon:   NewReconciler(cp, logger),
		online:  make(map[int64]bool),
	}
}

// Start subscribes to transport lifecycle events on the bus and loads a fresh
// snapshot every time the push channel (re)connects.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	if e.bus == nil {
		return
	}
	ch, unsub := e.bus.Subscribe("sync.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the session. A snapshot still in flight is abandoned.
func (e *Engine) Stop() {
	e.Deactivate()
	if e.cancel != nil {
		e.cancel()
	}
}

// Deactivate invalidates any in-flight snapshot load.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	e.generation++
	e.mu.Unlock()
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindConnecting:
		e.transition(status.Connecting)
	case bus.KindConnected:
		e.transition(status.Loading)
		if err := e.Activate(ctx); err != nil {
			if errors.Is(err, ErrSnapshotAbandoned) {
				return
			}
			e.logger.Error("failed to load snapshot", zap.Error(err))
			e.transition(status.Degraded)
			return
		}
		e.transition(status.Ready)
	case bus.KindDisconnected:
		e.transition(status.Reconnecting)
	}
}

func (e *Engine) transition(to status.State) {
	if e.machine == nil {
		return
	}
	if err := e.machine.Transition(to); err != nil {
		e.logger.Debug("status transition skipped", zap.Error(err))
	}
}

// Activate fetches the user's snapshot and applies it. If the session is
// deactivated or ctx is cancelled while the fetch is in flight, the result is
// discarded and ErrSnapshotAbandoned is returned.
func (e *Engine) Activate(ctx context.Context) error {
	e.mu.Lock()
	gen := e.generation
	e.mu.Unlock()

	convs, err := e.store.FetchConversationSnapshot(ctx, e.self.ID)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", convo.Classify("fetch snapshot", err))
	}

	e.mu.Lock()
	if ctx.Err() != nil || gen != e.generation {
		e.mu.Unlock()
		e.logger.Info("discarding stale snapshot", zap.Int("conversations", len(convs)))
		return ErrSnapshotAbandoned
	}
	orphans := e.loadSnapshotLocked(convs)
	e.mu.Unlock()

	e.finishSnapshot(ctx, len(convs), orphans)
	return nil
}

// Resync reloads the snapshot after push events were lost. Events already
// applied are merged again idempotently.
func (e *Engine) Resync(ctx context.Context) error {
	if err := e.Activate(ctx); err != nil && !errors.Is(err, ErrSnapshotAbandoned) {
		return err
	}
	return nil
}

// LoadSnapshot seeds the index from convs (messages newest first, as
// stored). Local provisional conversations and local state newer than the
// snapshot are kept.
func (e *Engine) LoadSnapshot(ctx context.Context, convs []convo.Conversation) {
	e.mu.Lock()
	orphans := e.loadSnapshotLocked(convs)
	e.mu.Unlock()

	e.finishSnapshot(ctx, len(convs), orphans)
}

func (e *Engine) finishSnapshot(ctx context.Context, n int, orphans []feed.NewMessage) {
	for _, ev := range orphans {
		if err := e.ReceiveMessage(ctx, ev); err != nil {
			e.logger.Warn("failed to replay parked message", zap.Error(err), zap.Int64("msg_id", ev.Message.ID))
		}
	}
	now := time.Now()
	e.recon.MarkSnapshot(now)
	e.logger.Info("snapshot loaded", zap.Int("conversations", n), zap.Int("replayed", len(orphans)))
	e.publish(bus.KindSnapshotLoaded, nil)
}

// loadSnapshotLocked merges the snapshot into the index and returns the
// parked events to replay.
func (e *Engine) loadSnapshotLocked(convs []convo.Conversation) []feed.NewMessage {
	self := e.self.ID
	fromSnapshot := make(map[int64]bool, len(convs))
	withUser := make(map[int64]bool, len(convs))
	merged := make([]*convo.Conversation, 0, len(convs)+e.index.Len())

	for _, stored := range convs {
		c := convo.Seed(stored, self)
		fromSnapshot[c.ID] = true
		withUser[c.OtherUser.ID] = true

		local := e.index.ByID(c.ID)
		if local == nil {
			local = e.index.Provisional(c.OtherUser.ID)
		}
		if local == nil {
			e.applyPresenceLocked(c)
			merged = append(merged, c)
			continue
		}
		foldLocal(c, local, self)
		e.applyPresenceLocked(c)
		// Keep the local object so holders of its identity see the update.
		*local = *c
		merged = append(merged, local)
	}

	var newer, provisional []*convo.Conversation
	for _, c := range e.index.All() {
		switch {
		case c.Provisional() && !withUser[c.OtherUser.ID]:
			provisional = append(provisional, c)
		case !c.Provisional() && !fromSnapshot[c.ID]:
			newer = append(newer, c)
		}
	}

	list := make([]*convo.Conversation, 0, len(newer)+len(merged)+len(provisional))
	list = append(list, newer...)
	list = append(list, merged...)
	list = append(list, provisional...)
	e.index.Replace(list)

	return e.recon.TakeAll()
}

// foldLocal carries local knowledge the snapshot may predate into c: known
// presence, read flags, and messages that arrived after the fetch.
func foldLocal(c, local *convo.Conversation, self int64) {
	c.OtherUser.Online = c.OtherUser.Online || local.OtherUser.Online
	var readIDs []int64
	for _, m := range local.Messages {
		if m.ID == 0 {
			continue
		}
		if !c.Has(m.ID) {
			c.Append(m)
			continue
		}
		if m.Read {
			readIDs = append(readIDs, m.ID)
		}
	}
	c.MarkRead(convo.NewIDSet(readIDs...))
	c.Recompute(self)
}

// mergeLocked applies a persisted message to the index. other is the
// participant a new conversation is created for when the message's
// conversation is unknown; with other nil an unknown conversation is
// reported as not found.
func (e *Engine) mergeLocked(m convo.Message, other *convo.User) (c *convo.Conversation, added bool) {
	c = e.index.ByID(m.ConversationID)
	if c == nil && other != nil {
		if prov := e.index.Provisional(other.ID); prov != nil && e.index.Promote(prov, m.ConversationID) {
			c = prov
		} else {
			c = convo.NewConversation(m.ConversationID, *other)
			e.applyPresenceLocked(c)
			e.index.Prepend(c)
		}
	}
	if c == nil {
		return nil, false
	}
	added = c.Append(m)
	c.Recompute(e.self.ID)
	return c, added
}

// ReceiveMessage applies a new-message event. An event for an unknown
// conversation without a sender is parked until the conversation appears.
func (e *Engine) ReceiveMessage(ctx context.Context, ev feed.NewMessage) error {
	m := ev.Message
	if m.ID == 0 || m.ConversationID == 0 {
		return ErrInvalidMessage
	}
	sender := ev.Sender
	if sender != nil && sender.ID == e.self.ID {
		sender = nil
	}

	e.mu.Lock()
	c, added := e.mergeLocked(m, sender)
	if c == nil {
		parked := e.recon.Park(ev)
		e.mu.Unlock()
		if parked {
			e.logger.Info("parked message for unknown conversation",
				zap.Int64("conversation_id", m.ConversationID), zap.Int64("msg_id", m.ID))
		}
		return nil
	}
	replay := e.recon.Take(c.ID)
	evaluate := added && m.SenderID != e.self.ID && e.isActiveLocked(c)
	upd := Update{ConversationID: c.ID, OtherUserID: c.OtherUser.ID}
	e.mu.Unlock()

	if added {
		e.publish(bus.KindConversationUpdated, upd)
	}
	for _, p := range replay {
		if err := e.ReceiveMessage(ctx, p); err != nil {
			e.logger.Warn("failed to replay parked message", zap.Error(err), zap.Int64("msg_id", p.Message.ID))
		}
	}
	if evaluate {
		if err := e.evaluateReadReceipt(ctx, upd.ConversationID); err != nil {
			e.logger.Warn("mark as read failed", zap.Error(err), zap.Int64("conversation_id", upd.ConversationID))
		}
	}
	return nil
}

// SendMessage persists text for recipientID, merges the stored message the
// same way an inbound message is merged and notifies the recipient. On a
// persistence failure the index is left untouched.
func (e *Engine) SendMessage(ctx context.Context, recipientID int64, text string) (convo.Message, error) {
	if strings.TrimSpace(text) == "" {
		return convo.Message{}, ErrEmptyMessage
	}

	e.mu.Lock()
	c := e.index.ByOtherUser(recipientID)
	if c == nil {
		e.mu.Unlock()
		return convo.Message{}, fmt.Errorf("send to %d: %w", recipientID, ErrUnknownRecipient)
	}
	other := c.OtherUser
	conversationID := c.ID
	e.mu.Unlock()

	d, err := e.store.PersistMessage(ctx, convo.OutgoingMessage{
		SenderID:       e.self.ID,
		RecipientID:    recipientID,
		ConversationID: conversationID,
		Text:           text,
	})
	if err != nil {
		return convo.Message{}, fmt.Errorf("send message: %w", convo.Classify("persist message", err))
	}
	if d.Message.ID == 0 || d.Message.ConversationID == 0 {
		return convo.Message{}, fmt.Errorf("send message: %w", ErrInvalidMessage)
	}

	e.mu.Lock()
	merged, _ := e.mergeLocked(d.Message, &other)
	replay := e.recon.Take(merged.ID)
	upd := Update{ConversationID: merged.ID, OtherUserID: merged.OtherUser.ID}
	e.mu.Unlock()

	e.publish(bus.KindConversationUpdated, upd)
	for _, p := range replay {
		if err := e.ReceiveMessage(ctx, p); err != nil {
			e.logger.Warn("failed to replay parked message", zap.Error(err), zap.Int64("msg_id", p.Message.ID))
		}
	}

	// The recipient rebuilds the conversation from Sender when it is new.
	if err := e.emitter.Emit(ctx, recipientID, feed.KindNewMessage, feed.NewMessage(d)); err != nil {
		e.logger.Warn("failed to emit new-message; recipient will catch up on snapshot",
			zap.Error(err), zap.Int64("msg_id", d.Message.ID))
	}
	return d.Message, nil
}

// ResolveConversationByDisplayName returns a copy of the conversation whose
// other participant is displayed as name.
func (e *Engine) ResolveConversationByDisplayName(name string) (convo.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.index.ByUsername(name)
	if c == nil {
		return convo.Conversation{}, false
	}
	return c.Clone(), true
}

// Open makes the conversation with username the active one and marks its
// inbound messages read. Persistence failures are returned; the active
// conversation stays set either way.
func (e *Engine) Open(ctx context.Context, username string) (convo.Conversation, error) {
	e.mu.Lock()
	c := e.index.ByUsername(username)
	if c == nil {
		e.mu.Unlock()
		return convo.Conversation{}, fmt.Errorf("open %q: %w", username, ErrUnknownConversation)
	}
	e.active = username
	id := c.ID
	e.mu.Unlock()

	if err := e.evaluateReadReceipt(ctx, id); err != nil {
		view, _ := e.ResolveConversationByDisplayName(username)
		return view, err
	}
	view, _ := e.ResolveConversationByDisplayName(username)
	return view, nil
}

// CloseActive clears the active conversation.
func (e *Engine) CloseActive() {
	e.mu.Lock()
	e.active = ""
	e.mu.Unlock()
}

// Active returns the display name of the active conversation, if any.
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) isActiveLocked(c *convo.Conversation) bool {
	return e.active != "" && e.index.ByUsername(e.active) == c
}

// evaluateReadReceipt marks the inbound unread messages of a conversation as
// read once the store confirms, then tells the other participant.
func (e *Engine) evaluateReadReceipt(ctx context.Context, conversationID int64) error {
	e.mu.Lock()
	c := e.index.ByID(conversationID)
	if c == nil {
		e.mu.Unlock()
		return nil
	}
	newest, ok := c.Newest()
	if !ok || newest.SenderID == e.self.ID {
		e.mu.Unlock()
		return nil
	}
	ids := c.UnreadIDs(e.self.ID)
	e.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	if err := e.store.PersistReadWatermark(ctx, e.self.ID, conversationID, ids); err != nil {
		return fmt.Errorf("mark read: %w", convo.Classify("persist read watermark", err))
	}

	e.mu.Lock()
	c = e.index.ByID(conversationID)
	if c == nil {
		e.mu.Unlock()
		return nil
	}
	// Only ids this call flipped are announced, so a concurrent trigger for
	// the same messages does not emit them twice.
	set := convo.NewIDSet(ids...)
	var flipped []int64
	for _, m := range c.Messages {
		if set.Has(m.ID) && !m.Read {
			flipped = append(flipped, m.ID)
		}
	}
	c.MarkRead(set)
	c.Recompute(e.self.ID)
	otherID := c.OtherUser.ID
	e.mu.Unlock()

	if len(flipped) == 0 {
		return nil
	}
	e.publish(bus.KindConversationUpdated, Update{ConversationID: conversationID, OtherUserID: otherID})

	receipt := feed.ReadReceipt{ConversationID: conversationID, MessageIDs: flipped}
	if err := e.emitter.Emit(ctx, otherID, feed.KindReadMessage, receipt); err != nil {
		e.logger.Warn("failed to emit read-message", zap.Error(err), zap.Int64("conversation_id", conversationID))
	}
	return nil
}

// ApplyReadReceipt records how far the other participant has read the
// current user's messages. It never marks the other participant's messages.
func (e *Engine) ApplyReadReceipt(_ context.Context, r feed.ReadReceipt) error {
	e.mu.Lock()
	c := e.index.ByID(r.ConversationID)
	if c == nil {
		e.mu.Unlock()
		e.logger.Debug("read receipt for unknown conversation", zap.Int64("conversation_id", r.ConversationID))
		return nil
	}
	n := 0
	switch {
	case len(r.MessageIDs) > 0:
		n = c.MarkReadFrom(e.self.ID, convo.NewIDSet(r.MessageIDs...))
	case r.ReadThroughIndex != nil:
		n = c.MarkReadThrough(e.self.ID, *r.ReadThroughIndex)
	}
	if n > 0 {
		c.Recompute(e.self.ID)
	}
	upd := Update{ConversationID: c.ID, OtherUserID: c.OtherUser.ID}
	e.mu.Unlock()

	if n > 0 {
		e.publish(bus.KindConversationUpdated, upd)
	}
	return nil
}

// UpdatePresence sets the online flag of userID on every conversation with
// that user and returns how many conversations changed. The flag is also
// remembered for conversations with userID that appear later.
func (e *Engine) UpdatePresence(userID int64, online bool) int {
	e.mu.Lock()
	e.online[userID] = online
	var changed []Update
	for _, c := range e.index.All() {
		if c.OtherUser.ID == userID && c.OtherUser.Online != online {
			c.OtherUser.Online = online
			changed = append(changed, Update{ConversationID: c.ID, OtherUserID: userID})
		}
	}
	e.mu.Unlock()

	for _, upd := range changed {
		e.publish(bus.KindConversationUpdated, upd)
	}
	return len(changed)
}

func (e *Engine) applyPresenceLocked(c *convo.Conversation) {
	if online, ok := e.online[c.OtherUser.ID]; ok {
		c.OtherUser.Online = online
	}
}

// AddSearchedUsers adds a provisional conversation at the tail for every user
// there is no conversation with yet. Returns how many were added.
func (e *Engine) AddSearchedUsers(users []convo.User) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, u := range users {
		if u.ID == 0 || u.ID == e.self.ID || e.index.ByOtherUser(u.ID) != nil {
			continue
		}
		c := convo.NewConversation(0, u)
		e.applyPresenceLocked(c)
		e.index.Push(c)
		n++
	}
	return n
}

// ClearSearchedUsers drops provisional conversations that never got a
// message.
func (e *Engine) ClearSearchedUsers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.RemoveIf(func(c *convo.Conversation) bool {
		return c.Provisional() && len(c.Messages) == 0
	})
}

// Conversations returns copies of all conversations in list order.
func (e *Engine) Conversations() []convo.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Snapshot()
}

// Conversation returns a copy of the persisted conversation with id.
func (e *Engine) Conversation(id int64) (convo.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.index.ByID(id)
	if c == nil {
		return convo.Conversation{}, false
	}
	return c.Clone(), true
}

// UnreadTotal returns the unread count across all conversations.
func (e *Engine) UnreadTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.UnreadTotal()
}

// PendingOrphans returns the number of parked messages.
func (e *Engine) PendingOrphans() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recon.Pending()
}

// LastSnapshot returns when a snapshot was last applied, if recorded.
func (e *Engine) LastSnapshot() time.Time {
	return e.recon.LastSnapshot()
}

// Self returns the session user.
func (e *Engine) Self() convo.User {
	return e.self
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
