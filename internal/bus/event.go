package bus

import "time"

// Event kinds published on the bus outside the feed.* namespace.
const (
	KindConnecting     = "sync.connecting"
	KindConnected      = "sync.connected"
	KindDisconnected   = "sync.disconnected"
	KindSnapshotLoaded = "sync.snapshot_loaded"

	KindConversationUpdated = "conversation.updated"

	KindStatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
