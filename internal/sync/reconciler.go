package sync

import (
	"time"

	"github.com/matheus3301/duochat/internal/feed"
	"go.uber.org/zap"
)

// CheckpointLastSnapshot records when the last snapshot was applied.
const CheckpointLastSnapshot = "last_snapshot_at"

const defaultParkLimit = 256

// Checkpointer persists sync checkpoints. The SQLite store implements it.
type Checkpointer interface {
	UpdateCheckpoint(key, value string) error
	GetCheckpoint(key string) (string, error)
}

// Reconciler parks new-message events whose conversation is not in the
// index yet and hands them back once the conversation shows up. It is not
// safe for concurrent use; the engine calls it under its lock.
type Reconciler struct {
	checkpoints Checkpointer
	logger      *zap.Logger
	limit       int
	parked      []feed.NewMessage
}

// NewReconciler creates a reconciler. cp may be nil.
func NewReconciler(cp Checkpointer, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{checkpoints: cp, logger: logger, limit: defaultParkLimit}
}

// Park keeps ev for a later replay. Redeliveries of an already parked message
// are ignored. When full, the oldest event is dropped; the next snapshot
// covers it.
func (r *Reconciler) Park(ev feed.NewMessage) bool {
	for _, p := range r.parked {
		if p.Message.ID == ev.Message.ID {
			return false
		}
	}
	if len(r.parked) >= r.limit {
		dropped := r.parked[0]
		r.parked = r.parked[1:]
		r.logger.Warn("orphan buffer full, dropping oldest",
			zap.Int64("msg_id", dropped.Message.ID),
			zap.Int64("conversation_id", dropped.Message.ConversationID))
	}
	r.parked = append(r.parked, ev)
	return true
}

// Take removes and returns the parked events for conversationID in arrival
// order.
func (r *Reconciler) Take(conversationID int64) []feed.NewMessage {
	var out []feed.NewMessage
	kept := r.parked[:0]
	for _, p := range r.parked {
		if p.Message.ConversationID == conversationID {
			out = append(out, p)
			continue
		}
		kept = append(kept, p)
	}
	r.parked = kept
	return out
}

// TakeAll removes and returns every parked event.
func (r *Reconciler) TakeAll() []feed.NewMessage {
	out := r.parked
	r.parked = nil
	return out
}

// Pending returns the number of parked events.
func (r *Reconciler) Pending() int {
	return len(r.parked)
}

// MarkSnapshot records the snapshot checkpoint. Errors are logged only.
func (r *Reconciler) MarkSnapshot(at time.Time) {
	if r.checkpoints == nil {
		return
	}
	if err := r.checkpoints.UpdateCheckpoint(CheckpointLastSnapshot, at.UTC().Format(time.RFC3339Nano)); err != nil {
		r.logger.Warn("failed to record snapshot checkpoint", zap.Error(err))
	}
}

// LastSnapshot returns the recorded snapshot time, or the zero time.
func (r *Reconciler) LastSnapshot() time.Time {
	if r.checkpoints == nil {
		return time.Time{}
	}
	v, err := r.checkpoints.GetCheckpoint(CheckpointLastSnapshot)
	if err != nil {
		return time.Time{}
	}
	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return at
}
