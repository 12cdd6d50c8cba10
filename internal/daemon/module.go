package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/casalink/inboxd/internal/api"
	"github.com/casalink/inboxd/internal/bus"
	"github.com/casalink/inboxd/internal/config"
	"github.com/casalink/inboxd/internal/inbox"
	"github.com/casalink/inboxd/internal/lock"
	"github.com/casalink/inboxd/internal/logging"
	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/notify"
	"github.com/casalink/inboxd/internal/preview"
	"github.com/casalink/inboxd/internal/profile"
	"github.com/casalink/inboxd/internal/refresh"
	"github.com/casalink/inboxd/internal/remote"
	"github.com/casalink/inboxd/internal/status"
	"github.com/casalink/inboxd/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  config.Config
	Listen  string // optional override for testing; empty = use config
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
			provideRemoteClient,
			provideAssembler,
			provideScheduler,
			provideRouter,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.Profile)
	db, err := store.Open(dbPath)
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
	logger.Info("connection cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemoteClient(p Params, logger *zap.Logger) *remote.Client {
	return remote.NewClient(p.Config.APIBaseURL, p.Config.APIToken, logger)
}

func provideAssembler(p Params, client *remote.Client, logger *zap.Logger) *inbox.Assembler {
	fetcher := preview.NewFetcher(client, logger)
	return inbox.NewAssembler(client, fetcher, p.Config.UserID, p.Config.PreviewFanout, logger)
}

func provideScheduler(p Params, assembler *inbox.Assembler, db *store.DB, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *refresh.Scheduler {
	opts := refresh.Options{
		Interval: time.Duration(p.Config.RefreshIntervalSeconds) * time.Second,
		Cooldown: time.Duration(p.Config.RefreshCooldownSeconds) * time.Second,
	}
	return refresh.New(assembler, db, b, machine, opts, logger)
}

func provideRouter(sched *refresh.Scheduler, client *remote.Client, b *bus.Bus, logger *zap.Logger) *notify.Router {
	r := notify.NewRouter(sched, sched, b, logger)
	r.Register(model.NotificationJobRequest, func(ctx context.Context, id string) (any, error) {
		job, err := client.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		return job, nil
	})
	r.Register(model.NotificationPropertyInvite, func(ctx context.Context, id string) (any, error) {
		prop, err := client.Property(ctx, id)
		if err != nil {
			return nil, err
		}
		return prop, nil
	})
	return r
}

func provideHandlers(p Params, sched *refresh.Scheduler, router *notify.Router, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *api.Handlers {
	return api.NewHandlers(sched, router, machine, b, p.Profile, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, sched *refresh.Scheduler, router *notify.Router, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Warm start: prime the snapshot from the cached connection
			// directory so the list renders before the first backend sync.
			_ = machine.Transition(status.Warming)
			if conns, err := db.ListConnections(); err != nil {
				logger.Warn("connection cache read failed", zap.Error(err))
			} else if len(conns) > 0 {
				entries := make([]model.ConversationEntry, len(conns))
				for i, c := range conns {
					entries[i] = model.ConversationEntry{Connection: c}
				}
				sched.Prime(entries)
				logger.Info("primed from connection cache", zap.Int("connections", len(conns)))
			}
			_ = machine.Transition(status.Syncing)

			router.Start(context.Background())
			sched.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Drain the HTTP server first: a request landing mid-shutdown
			// could otherwise start a refresh after the scheduler stopped
			// and write to the already-closed cache.
			srv.Stop(ctx)
			sched.Stop()
			router.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing connection cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
