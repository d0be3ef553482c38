package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/duochat/internal/bus"
)

func startRelay(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// connect starts a client for userID and waits until it is connected.
func connect(t *testing.T, relayURL string, userID int64) (*Client, <-chan bus.Event) {
	t.Helper()
	b := bus.New()
	feedCh, unsubFeed := b.Subscribe(BusPrefix, 64)
	syncCh, unsubSync := b.Subscribe(bus.KindConnected, 4)
	t.Cleanup(unsubFeed)
	t.Cleanup(unsubSync)

	c, err := NewClient(relayURL, userID, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	select {
	case <-syncCh:
	case <-time.After(3 * time.Second):
		t.Fatalf("user %d: timeout waiting for sync.connected", userID)
	}
	return c, feedCh
}

// next returns the next feed event of the given type, skipping others.
func next(t *testing.T, ch <-chan bus.Event, kind Kind) Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			env, ok := evt.Payload.(Envelope)
			if ok && env.Type == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func presenceOf(t *testing.T, env Envelope) int64 {
	t.Helper()
	v, err := Decode(env)
	if err != nil {
		t.Fatal(err)
	}
	return v.(*Presence).UserID
}

func TestRelayRoutesByRecipient(t *testing.T) {
	_, url := startRelay(t)
	alice, aliceFeed := connect(t, url, 1)
	_, bobFeed := connect(t, url, 7)
	// bob is routable once the relay has announced him.
	next(t, aliceFeed, KindPresenceUp)

	err := alice.Emit(context.Background(), 7, KindReadMessage, ReadReceipt{ConversationID: 42, MessageIDs: []int64{3}})
	if err != nil {
		t.Fatal(err)
	}

	env := next(t, bobFeed, KindReadMessage)
	if env.From != 1 {
		t.Errorf("From = %d, want 1 stamped by the relay", env.From)
	}
	v, err := Decode(env)
	if err != nil {
		t.Fatal(err)
	}
	if r := v.(*ReadReceipt); r.ConversationID != 42 {
		t.Errorf("receipt = %+v, want conversation 42", r)
	}
}

func TestRelayAnnouncesPresence(t *testing.T) {
	hub, url := startRelay(t)
	_, aliceFeed := connect(t, url, 1)
	bob, bobFeed := connect(t, url, 7)

	if got := presenceOf(t, next(t, aliceFeed, KindPresenceUp)); got != 7 {
		t.Errorf("alice saw presence-up for %d, want 7", got)
	}
	// The newcomer is told who was already online.
	if got := presenceOf(t, next(t, bobFeed, KindPresenceUp)); got != 1 {
		t.Errorf("bob saw presence-up for %d, want 1", got)
	}
	if online := hub.Online(); !slices.Equal(online, []int64{1, 7}) {
		t.Errorf("Online = %v, want [1 7]", online)
	}

	bob.Stop()
	if got := presenceOf(t, next(t, aliceFeed, KindPresenceDown)); got != 7 {
		t.Errorf("alice saw presence-down for %d, want 7", got)
	}
}

func TestRelayRejectsMissingUser(t *testing.T) {
	_, url := startRelay(t)
	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws") + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	c, err := NewClient("ws://127.0.0.1:1", 1, bus.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Emit(context.Background(), 7, KindPresenceUp, Presence{UserID: 1}); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	c, _ := NewClient("ws://127.0.0.1:1", 1, bus.New(), nil)
	for attempt := 0; attempt < 12; attempt++ {
		if d := c.backoff(attempt); d <= 0 || d > c.maxDelay {
			t.Errorf("backoff(%d) = %v, want within (0, %v]", attempt, d, c.maxDelay)
		}
	}
}
