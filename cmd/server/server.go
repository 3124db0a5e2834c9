// cmd/server/server.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/api"
	"github.com/codr1/leaguebids/internal/api/auth"
	"github.com/codr1/leaguebids/internal/api/freeagency"
	"github.com/codr1/leaguebids/internal/api/realtime"
	"github.com/codr1/leaguebids/internal/auction"
	"github.com/codr1/leaguebids/internal/config"
	"github.com/codr1/leaguebids/internal/db"
	"github.com/codr1/leaguebids/internal/email"
	"github.com/codr1/leaguebids/internal/ratelimit"
	"github.com/codr1/leaguebids/internal/scheduler"
	"github.com/codr1/leaguebids/internal/tokenstore"
)

const notificationBuffer = 256

type app struct {
	server        *http.Server
	notifier      *email.Notifier
	notifications <-chan auction.Event

	closers   []func()
	closeOnce sync.Once
}

// Close releases components in reverse order of construction.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	})
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	})

	bus := auction.NewBus()
	engine := auction.NewEngine(database, cfg.Rules(),
		auction.WithPublisher(bus),
		auction.WithLogger(log.Logger),
	)
	a.closers = append(a.closers, engine.Stop)

	restored, err := engine.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore auction timers: %w", err)
	}
	log.Info().Int("auctions", restored).Msg("Restored auction timers")

	tokens, purger, err := newTokenStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(&ratelimit.Config{
		BidCooldown:       cfg.RateLimit.BidCooldown,
		TeamBidsPerMinute: cfg.RateLimit.TeamBidsPerMinute,
		IPBidsPerMinute:   cfg.RateLimit.IPBidsPerMinute,
		LoginMaxPerHour:   cfg.RateLimit.LoginAttemptsPerHour,
		LoginMaxIPPerHour: cfg.RateLimit.LoginAttemptsPerHour * 3,
	})
	a.closers = append(a.closers, limiter.Close)

	sessions := auth.NewService(database, tokens, auth.Options{
		CookieName:   cfg.Sessions.CookieName,
		TTL:          cfg.Sessions.TTL,
		SecureCookie: cfg.App.Environment == "production",
		TrustProxy:   cfg.App.TrustProxy,
		Limiter:      limiter,
	})

	sched, err := scheduler.New(nil)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
	})
	if err := scheduler.RegisterAuctionSweepJob(sched, engine, cfg.Scheduler.SweepCron); err != nil {
		return nil, err
	}
	if purger != nil {
		if err := scheduler.RegisterTokenPurgeJob(sched, purger, cfg.Scheduler.TokenPurgeCron); err != nil {
			return nil, err
		}
	}
	sched.Start()

	var sender email.EmailSender = email.LogSender{}
	if cfg.Email.Enabled {
		client, err := email.NewSESClient(ctx, email.SESOptions{
			Region:          cfg.Email.Region,
			Sender:          cfg.Email.Sender,
			AccessKeyID:     cfg.Email.AccessKeyID,
			SecretAccessKey: cfg.Email.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create email client: %w", err)
		}
		sender = client
	} else {
		log.Info().Msg("Email delivery disabled, notifications will be logged")
	}
	events, unsubscribe := bus.Subscribe(notificationBuffer)
	a.closers = append(a.closers, unsubscribe)
	a.notifier = email.NewNotifier(sender, database, cfg.App.BaseURL)
	a.notifications = events

	router := http.NewServeMux()
	registerRoutes(router, cfg, engine, bus, sessions, limiter)

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithAuth(sessions),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// newTokenStore returns the session store and, for the in-memory driver, the purger
// the scheduler should run.
func newTokenStore(ctx context.Context, cfg *config.Config, a *app) (tokenstore.Store, scheduler.Purger, error) {
	switch cfg.Sessions.Driver {
	case "memory":
		store := tokenstore.NewMemoryStore(clockwork.NewRealClock())
		return store, store, nil
	case "redis":
		store := tokenstore.NewRedisStore(tokenstore.RedisOptions{
			Addr:     cfg.Sessions.Redis.Addr,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		})
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Sessions.Redis.Addr, err)
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sessions driver: %s", cfg.Sessions.Driver)
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, engine *auction.Engine, bus *auction.Bus, sessions *auth.Service, limiter *ratelimit.Limiter) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/v1/auth/login", sessions.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", sessions.HandleLogout)

	freeagency.NewHandlers(engine, limiter, cfg.App.TrustProxy).RegisterRoutes(mux)
	realtime.NewStreamHandler(bus, cfg.App.AllowedOrigins).RegisterRoutes(mux)
}
