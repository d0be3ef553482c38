package daemon

import (
	"context"
	"path/filepath"

	"github.com/matheus3301/duochat/internal/api"
	"github.com/matheus3301/duochat/internal/bus"
	"github.com/matheus3301/duochat/internal/convo"
	"github.com/matheus3301/duochat/internal/feed"
	"github.com/matheus3301/duochat/internal/lock"
	"github.com/matheus3301/duochat/internal/logging"
	"github.com/matheus3301/duochat/internal/router"
	"github.com/matheus3301/duochat/internal/session"
	"github.com/matheus3301/duochat/internal/status"
	"github.com/matheus3301/duochat/internal/store"
	intsync "github.com/matheus3301/duochat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
// The session name is also the user name the daemon syncs for.
type Params struct {
	SessionName string
	RelayURL    string
	DBPath      string
	SessionDir  string // optional override for testing; empty = use default
	SocketPath  string // optional override for testing; empty = use default
}

func (p Params) dir() string {
	if p.SessionDir != "" {
		return p.SessionDir
	}
	return session.Dir(p.SessionName)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), "daemon.sock")
}

func (p Params) logPath() string {
	return filepath.Join(p.dir(), "logs", "duochatd.log")
}

func (p Params) dbPath() string {
	if p.DBPath != "" {
		return p.DBPath
	}
	return session.DefaultDBPath()
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSelf,
			provideFeedClient,
			provideEngine,
			provideRouter,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.logPath(), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("dir", p.dir()))
	l, err := lock.Acquire(p.dir(), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(p.dbPath())
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", db.Path()))
	return db, nil
}

func provideSelf(p Params, db *store.DB, logger *zap.Logger) (convo.User, error) {
	u, err := db.EnsureUser(context.Background(), p.SessionName)
	if err != nil {
		return convo.User{}, err
	}
	logger.Info("session user", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

func provideFeedClient(p Params, self convo.User, b *bus.Bus, logger *zap.Logger) (*feed.Client, error) {
	return feed.NewClient(p.RelayURL, self.ID, b, logger.Named("feed"))
}

func provideEngine(self convo.User, db *store.DB, client *feed.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(self, db.Session(self.ID), client, b, m, logger.Named("sync"))
}

func provideRouter(b *bus.Bus, engine *intsync.Engine, logger *zap.Logger) *router.Router {
	return router.New(b, engine, logger.Named("router"))
}

func provideService(p Params, engine *intsync.Engine, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, engine, db, m, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, client *feed.Client, engine *intsync.Engine, rt *router.Router, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers first, so the first sync.connecting is not missed.
			engine.Start(context.Background())
			rt.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			client.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			client.Stop()
			rt.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
