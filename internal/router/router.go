package router

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/duochat/internal/bus"
	"github.com/matheus3301/duochat/internal/feed"
	"go.uber.org/zap"
)

// Handler receives typed push events. The sync engine implements it.
type Handler interface {
	ReceiveMessage(ctx context.Context, ev feed.NewMessage) error
	ApplyReadReceipt(ctx context.Context, r feed.ReadReceipt) error
	UpdatePresence(userID int64, online bool) int
}

// Resyncer is implemented by handlers that can rebuild their state after
// feed events were dropped.
type Resyncer interface {
	Resync(ctx context.Context) error
}

const defaultBufSize = 1024

// Router demultiplexes the inbound push feed into typed events. It does not
// touch the conversation index itself; everything goes through the Handler.
type Router struct {
	bus     *bus.Bus
	handler Handler
	logger  *zap.Logger
	bufSize int
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a router feeding h from the feed.* namespace of b.
func New(b *bus.Bus, h Handler, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{bus: b, handler: h, logger: logger, bufSize: defaultBufSize}
}

// Start subscribes to the inbound feed. Events are handled one at a time in
// arrival order.
func (r *Router) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	ch, unsub := r.bus.Subscribe(feed.BusPrefix, r.bufSize)

	go func() {
		defer close(r.done)
		defer unsub()
		var dropped uint64
		for {
			select {
			case evt := <-ch:
				r.route(ctx, evt)
				if n := r.bus.DroppedFor(feed.BusPrefix); n > dropped {
					r.logger.Warn("feed events dropped, resyncing", zap.Uint64("dropped", n-dropped))
					dropped = n
					r.resync(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop unsubscribes and waits for the event in progress to finish.
func (r *Router) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Router) resync(ctx context.Context) {
	rs, ok := r.handler.(Resyncer)
	if !ok {
		return
	}
	if err := rs.Resync(ctx); err != nil {
		r.logger.Error("resync after dropped feed events failed", zap.Error(err))
	}
}

func (r *Router) route(ctx context.Context, evt bus.Event) {
	env, ok := envelopeOf(evt.Payload)
	if !ok {
		r.logger.Warn("dropping feed event with unexpected payload", zap.String("kind", evt.Kind))
		return
	}
	if err := r.Dispatch(ctx, env); err != nil {
		r.logger.Error("failed to handle feed event", zap.Error(err),
			zap.String("type", string(env.Type)), zap.String("event_id", env.ID))
	}
}

// Dispatch decodes env and hands the typed event to the handler.
func (r *Router) Dispatch(ctx context.Context, env feed.Envelope) error {
	evt, err := feed.Decode(env)
	if err != nil {
		return err
	}
	switch p := evt.(type) {
	case *feed.NewMessage:
		return r.handler.ReceiveMessage(ctx, *p)
	case *feed.ReadReceipt:
		return r.handler.ApplyReadReceipt(ctx, *p)
	case *feed.Presence:
		online := env.Type == feed.KindPresenceUp
		n := r.handler.UpdatePresence(p.UserID, online)
		r.logger.Debug("presence updated", zap.Int64("user_id", p.UserID), zap.Bool("online", online), zap.Int("conversations", n))
	}
	return nil
}

func envelopeOf(payload any) (feed.Envelope, bool) {
	switch p := payload.(type) {
	case feed.Envelope:
		return p, true
	case *feed.Envelope:
		if p == nil {
			return feed.Envelope{}, false
		}
		return *p, true
	case []byte:
		var env feed.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			return feed.Envelope{}, false
		}
		return env, true
	}
	return feed.Envelope{}, false
}
