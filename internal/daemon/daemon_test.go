package daemon

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/duochat/internal/api"
	"github.com/matheus3301/duochat/internal/feed"
	"github.com/matheus3301/duochat/internal/lock"
	"github.com/matheus3301/duochat/internal/status"
	"github.com/matheus3301/duochat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// shortTempDir keeps socket paths under the 104-char Unix socket limit on macOS.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// TestNewServerUsesParams verifies the socket lands where Params says.
// Regression: a bare `string` param caused fx to fail with "missing type: string".
func TestNewServerUsesParams(t *testing.T) {
	tmpDir := shortTempDir(t, "duochat-srv-*")
	socketPath := filepath.Join(tmpDir, "d.sock")

	p := Params{SessionName: "fxtest", SocketPath: socketPath}
	svc := api.NewService("fxtest", nil, nil, status.NewMachine(nil), nil, nil)
	srv, err := NewServer(p, zap.NewNop(), svc)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}

	srv.Stop(context.Background())
	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Errorf("socket still present after Stop: %v", statErr)
	}
}

func TestParamsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p := Params{SessionName: "alice"}
	if !strings.HasSuffix(p.socketPath(), filepath.Join("sessions", "alice", "daemon.sock")) {
		t.Errorf("socketPath = %q", p.socketPath())
	}
	if !strings.HasSuffix(p.dbPath(), filepath.Join(".duochat", "duochat.db")) {
		t.Errorf("dbPath = %q", p.dbPath())
	}

	p = Params{SessionName: "alice", SessionDir: "/x", DBPath: "/y/db"}
	if p.socketPath() != "/x/daemon.sock" || p.logPath() != "/x/logs/duochatd.log" || p.dbPath() != "/y/db" {
		t.Errorf("overrides not honored: %q %q %q", p.socketPath(), p.logPath(), p.dbPath())
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	p := Params{SessionName: "fxtest", SessionDir: t.TempDir()}
	if err := fx.ValidateApp(Module(p), fx.NopLogger); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

func waitForStatus(t *testing.T, c *api.Client, want status.State) *api.GetStatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := c.GetStatus(context.Background())
		if err == nil && resp.Status == string(want) {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s (last %+v, err %v)", want, resp, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	tmpDir := shortTempDir(t, "duochat-d-*")
	sessionDir := filepath.Join(tmpDir, "alice")
	dbPath := filepath.Join(tmpDir, "duochat.db")

	// bob registered on this machine earlier.
	seed, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.Migrate(); err != nil {
		t.Fatal(err)
	}
	if _, err := seed.EnsureUser(context.Background(), "bob"); err != nil {
		t.Fatal(err)
	}
	_ = seed.Close()

	relay := httptest.NewServer(feed.NewHub(zap.NewNop()))
	t.Cleanup(relay.Close)

	p := Params{
		SessionName: "alice",
		RelayURL:    "ws" + strings.TrimPrefix(relay.URL, "http"),
		DBPath:      dbPath,
		SessionDir:  sessionDir,
	}
	app := fx.New(Module(p), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app start: %v", err)
	}
	stopped := false
	t.Cleanup(func() {
		if !stopped {
			_ = app.Stop(context.Background())
		}
	})

	// A second daemon for the same session must be refused.
	if _, err := lock.Acquire(sessionDir, "alice"); err == nil {
		t.Fatal("second lock acquired while daemon is running")
	} else {
		var held *lock.LockHeldError
		if !errors.As(err, &held) || held.User != "alice" {
			t.Errorf("err = %v, want LockHeldError for alice", err)
		}
	}

	c, err := api.Dial(p.socketPath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	st := waitForStatus(t, c, status.Ready)
	if st.Username != "alice" || st.UserID == 0 || st.ConversationCount != 0 {
		t.Errorf("status = %+v, want alice with no conversations", st)
	}

	if _, err := c.SearchUsers(ctx, "bob", 0); err != nil {
		t.Fatal(err)
	}
	sent, err := c.SendMessage(ctx, "bob", "hi bob")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent.Message.ID == 0 || sent.Message.ConversationID == 0 {
		t.Errorf("message = %+v, want persisted", sent.Message)
	}

	list, err := c.ListConversations(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Conversations) != 1 || list.Conversations[0].Provisional || len(list.Conversations[0].Messages) != 1 {
		t.Errorf("conversations = %+v, want one persisted conversation with bob", list.Conversations)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("app stop: %v", err)
	}
	stopped = true

	if _, err := os.Stat(p.socketPath()); !os.IsNotExist(err) {
		t.Errorf("socket not removed on stop: %v", err)
	}
	lk, err := lock.Acquire(sessionDir, "alice")
	if err != nil {
		t.Fatalf("lock not released on stop: %v", err)
	}
	_ = lk.Release()
}
