package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/matheus3301/duochat/internal/bus"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ErrNotConnected is returned by Emit while the push channel is down.
var ErrNotConnected = errors.New("push channel not connected")

const maxFrameSize = 1 << 20

// Client is the session's handle on the push channel. Inbound envelopes are
// published on the bus under feed.<type>; Emit writes outbound envelopes.
// Connection state changes are published as sync.connecting,
// sync.connected and sync.disconnected.
type Client struct {
	endpoint string
	bus      *bus.Bus
	logger   *zap.Logger

	baseDelay time.Duration
	maxDelay  time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client for userID against the relay at relayURL
// (ws:// or wss:// base URL).
func NewClient(relayURL string, userID int64, b *bus.Bus, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("user", strconv.FormatInt(userID, 10))
	u.RawQuery = q.Encode()

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:  u.String(),
		bus:       b,
		logger:    logger,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
	}, nil
}

// Start connects in the background and keeps reconnecting until Stop.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()
	go c.run(ctx)
}

// Stop closes the connection and waits for the background loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Connected reports whether the push channel is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends payload as a kind event addressed to user to.
func (c *Client) Emit(ctx context.Context, to int64, kind Kind, payload any) error {
	env, err := Encode(kind, to, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	for {
		c.publish(bus.KindConnecting)
		conn, _, err := websocket.Dial(ctx, c.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := c.backoff(attempt)
			attempt++
			c.logger.Warn("relay dial failed", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		attempt = 0
		conn.SetReadLimit(maxFrameSize)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info("push channel connected", zap.String("endpoint", c.endpoint))
		c.publish(bus.KindConnected)

		err = c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		c.publish(bus.KindDisconnected)

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel lost", zap.Error(err))
		if !sleep(ctx, c.backoff(0)) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.bus.Publish(bus.Event{
			Kind:      BusKind(env.Type),
			Timestamp: time.Now(),
			Payload:   env,
		})
	}
}

func (c *Client) publish(kind string) {
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
}

// backoff returns an exponential delay with up to 50% jitter, capped at maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	jitter := rand.Float64() * float64(c.baseDelay) * 0.5
	d := math.Min(float64(c.baseDelay)*math.Pow(2, float64(attempt))+jitter, float64(c.maxDelay))
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
