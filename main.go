package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"content-calendar/boot"
	"content-calendar/controllers"
	"content-calendar/helpers"
	"content-calendar/lock"
	"content-calendar/models"
	"content-calendar/notify"
	"content-calendar/scheduler"
	"content-calendar/slack"
	"content-calendar/store"
	"content-calendar/syncer"
	"content-calendar/tasks"

	"github.com/pocketbase/pocketbase/core"
)

const shutdownTimeout = 15 * time.Second

type services struct {
	scheduler  *scheduler.Scheduler
	reconciler *syncer.Reconciler
	syncer     *syncer.Service
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := boot.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}

	app := helpers.CreateApp(!cfg.IsProduction())

	var svc *services
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		s, err := setup(ctx, app, cfg)
		if err != nil {
			return err
		}
		svc = s

		controllers.SetupHealthRoutes(se)
		controllers.SetupSchedulerRoutes(se, s.scheduler)

		s.scheduler.Start(ctx)
		if s.reconciler != nil {
			s.reconciler.Start(ctx)
		}
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if svc != nil {
			shutdown(app.Logger(), svc)
		}
		cancel()
		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func setup(ctx context.Context, app core.App, cfg boot.Config) (*services, error) {
	logger := app.Logger()

	primary := store.NewPrimary(app.DB(), store.WithLogger(logger))
	if err := primary.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisConfigured() {
		rdb, err := models.ConnectRedis(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisUser, cfg.RedisPassword, cfg.RedisDB, cfg.Env)
		if err != nil {
			logger.Warn("Redis unavailable, claims are local to this process", "type", "startup", "error", err)
		} else {
			locker = lock.NewRedis(rdb, "content-calendar:")
		}
	}

	replicator := syncer.New(syncer.Config{
		Enabled:   cfg.MirrorConfigured(),
		QueueSize: cfg.SyncQueueSize,
	}, func(ctx context.Context) (syncer.Mirror, error) {
		db, closePool, err := models.ConnectDatabase(ctx, cfg.MirrorDatabaseURL, cfg.Env, cfg.MirrorMaxConns)
		if err != nil {
			return nil, err
		}
		mirror := store.NewMirror(db, store.WithCloser(closePool))
		if cfg.Migrate {
			if err := mirror.AutoMigrate(ctx); err != nil {
				mirror.Close()
				return nil, err
			}
		}
		return mirror, nil
	}, logger)
	posts := store.NewSynced(primary, replicator)

	opts := tasks.Options{Logger: logger}
	registry := tasks.NewRegistry(primary, logger)
	registry.Register(models.PlatformMastodon, tasks.NewMastodon(cfg.MastodonBaseURL, opts))
	registry.Register(models.PlatformDiscord, tasks.NewDiscord("", opts))
	registry.Register(models.PlatformThreads, tasks.NewThreads("", opts))
	if cfg.TwitterConsumerKey != "" && cfg.TwitterSecret != "" {
		registry.Register(models.PlatformTwitter, tasks.NewTwitter(cfg.TwitterConsumerKey, cfg.TwitterSecret, opts))
	} else {
		logger.Warn("Twitter keys not set, twitter posts will fail", "type", "startup")
	}

	chat := slack.New(cfg.SlackBaseURL, nil, logger)
	dispatcher := notify.NewDispatcher(primary, notify.NewAppMailer(app), chat,
		notify.WithLogger(logger),
		notify.WithLocker(locker, cfg.NotificationTTL),
		notify.WithLinker(posts),
	)

	s := &services{syncer: replicator}
	s.scheduler = scheduler.New(posts, registry, dispatcher, scheduler.Config{
		Interval:         cfg.SchedulerInterval,
		QuietLogInterval: cfg.QuietLogInterval,
		ClaimTTL:         cfg.ClaimTTL,
		APIHost:          cfg.APIHost,
	}, scheduler.WithLogger(logger), scheduler.WithLocker(locker))

	if cfg.ReconcileEnabled {
		s.reconciler = syncer.NewReconciler(primary, chat, posts, syncer.ReconcilerConfig{
			Interval:     cfg.ReconcileInterval,
			HistoryLimit: cfg.ReconcileHistory,
		}, logger)
	}
	return s, nil
}

func shutdown(logger *slog.Logger, s *services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.scheduler.Stop(ctx); err != nil {
		logger.Error("Scheduler did not stop in time", "type", "shutdown", "error", err)
	}
	if s.reconciler != nil {
		if err := s.reconciler.Stop(ctx); err != nil {
			logger.Error("Reconciler did not stop in time", "type", "shutdown", "error", err)
		}
	}
	if err := s.syncer.Close(ctx); err != nil {
		logger.Error("Sync queue not drained", "type", "shutdown", "error", err, "dropped", s.syncer.Dropped())
	}
}
