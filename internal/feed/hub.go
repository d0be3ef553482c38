package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/matheus3301/duochat/internal/bus"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const presenceNamespace = "presence."

func userNamespace(id int64) string {
	return "user." + strconv.FormatInt(id, 10) + "."
}

// Hub is the relay side of the push channel. It forwards addressed envelopes
// between connected users and announces presence. Fan-out goes through an
// in-process bus keyed by user id.
type Hub struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	online map[int64]int // user id -> open connections
}

// NewHub creates a relay hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:    bus.New(),
		logger: logger,
		online: make(map[int64]int),
	}
}

// Online returns the ids of connected users in ascending order.
func (h *Hub) Online() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int64, 0, len(h.online))
	for id := range h.online {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ServeHTTP upgrades GET /ws?user=<id> to a websocket session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid user", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)
	h.serve(r.Context(), userID, conn)
}

func (h *Hub) serve(ctx context.Context, userID int64, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	direct, unsubDirect := h.bus.Subscribe(userNamespace(userID), 256)
	defer unsubDirect()
	presence, unsubPresence := h.bus.Subscribe(presenceNamespace, 256)
	defer unsubPresence()

	already := h.join(userID)
	defer h.leave(userID)
	h.logger.Info("user connected", zap.Int64("user_id", userID))

	// Tell the newcomer who is already here.
	for _, id := range already {
		if err := h.write(ctx, conn, presenceEnvelope(KindPresenceUp, id)); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}

	go h.writeLoop(ctx, cancel, userID, conn, direct, presence)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.logger.Info("user disconnected", zap.Int64("user_id", userID), zap.Error(err))
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.To <= 0 {
			h.logger.Warn("dropping unroutable frame", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		env.From = userID
		h.bus.Publish(bus.Event{
			Kind:      userNamespace(env.To) + string(env.Type),
			Timestamp: time.Now(),
			Payload:   env,
		})
	}
}

func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, self int64, conn *websocket.Conn, direct, presence <-chan bus.Event) {
	defer cancel()
	for {
		var evt bus.Event
		select {
		case evt = <-direct:
		case evt = <-presence:
		case <-ctx.Done():
			return
		}
		env, ok := evt.Payload.(Envelope)
		if !ok || (env.From == self && env.To == 0) {
			continue
		}
		if err := h.write(ctx, conn, env); err != nil {
			h.logger.Warn("relay write failed", zap.Int64("user_id", self), zap.Error(err))
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// join registers a connection and returns the other users already online.
func (h *Hub) join(userID int64) []int64 {
	h.mu.Lock()
	var others []int64
	for id := range h.online {
		if id != userID {
			others = append(others, id)
		}
	}
	h.online[userID]++
	first := h.online[userID] == 1
	h.mu.Unlock()

	if first {
		h.announce(KindPresenceUp, userID)
	}
	slices.Sort(others)
	return others
}

func (h *Hub) leave(userID int64) {
	h.mu.Lock()
	h.online[userID]--
	last := h.online[userID] <= 0
	if last {
		delete(h.online, userID)
	}
	h.mu.Unlock()

	if last {
		h.announce(KindPresenceDown, userID)
	}
}

func (h *Hub) announce(kind Kind, userID int64) {
	h.bus.Publish(bus.Event{
		Kind:      presenceNamespace + string(kind),
		Timestamp: time.Now(),
		Payload:   presenceEnvelope(kind, userID),
	})
}

func presenceEnvelope(kind Kind, userID int64) Envelope {
	env, _ := Encode(kind, 0, Presence{UserID: userID})
	env.From = userID
	return env
}
