package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	authhandler "girok/internal/auth/handler"
	"girok/internal/auth/registry"
	authservice "girok/internal/auth/service"
	"girok/internal/auth/store/account"
	"girok/internal/auth/store/attempt"
	"girok/internal/auth/store/challenge"
	"girok/internal/auth/store/mfa"
	"girok/internal/auth/store/session"
	"girok/internal/auth/token"
	"girok/internal/cache"
	consenthandler "girok/internal/consent/handler"
	consentservice "girok/internal/consent/service"
	consentstore "girok/internal/consent/store"
	dsrhandler "girok/internal/dsr/handler"
	dsrservice "girok/internal/dsr/service"
	dsrstore "girok/internal/dsr/store"
	legalhandler "girok/internal/legal/handler"
	legalservice "girok/internal/legal/service"
	"girok/internal/legal/store/document"
	"girok/internal/legal/store/law"
	"girok/internal/outbox"
	"girok/internal/platform/config"
	"girok/internal/platform/httpserver"
	"girok/internal/platform/logger"
	"girok/internal/platform/metrics"
	platformredis "girok/internal/platform/redis"
	sanctionhandler "girok/internal/sanction/handler"
	sanctionservice "girok/internal/sanction/service"
	sanctionstore "girok/internal/sanction/store"
	httptransport "girok/internal/transport/http"
	txpkg "girok/pkg/platform/tx"
)

const (
	tokenIssuer   = "girok"
	tokenAudience = "girok-clients"
	topicPrefix   = "girok"
)

// main wires the process: storage, cache, bus, the five services, the router,
// and the background loops. Business rules live in internal packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		log.Error("postgres ping failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		log.Error("kafka connect failed", "error", err)
		os.Exit(1)
	}
	defer kafkaClient.Close()

	m := metrics.New()
	runner := txpkg.SQLRunner{DB: db}
	c := cache.NewRedis(redisClient.Client, log)
	keys := cache.NewKeys("girok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obStore := outbox.NewPostgres(db)
	bus := outbox.NewKafkaBus(kafkaClient, topicPrefix)
	if err := bus.EnsureTopics(ctx); err != nil {
		log.Error("kafka topic setup failed", "error", err)
		os.Exit(1)
	}
	obWorker := outbox.NewWorker(obStore, bus, log, m)

	revocations := cache.NewTokenRevocations(c, keys)
	tokens := token.NewService(cfg.JWTSecret, tokenIssuer, tokenAudience,
		cfg.Auth.AccessTokenLifetime, revocations)

	authSvc := authservice.New(
		account.NewPostgres(db),
		session.NewCached(session.NewPostgres(db), c, keys),
		attempt.NewPostgres(db),
		mfa.NewPostgres(db),
		challenge.New(c, keys),
		tokens,
		revocations,
		obStore,
		runner,
		cfg.Auth,
		m,
		log,
	)
	services := registry.New(registry.NewPostgres(db), c, keys)
	sanctionSvc := sanctionservice.New(sanctionstore.NewPostgres(db), obStore, runner, c, keys, m, log)
	legalSvc := legalservice.New(document.NewPostgres(db), law.NewPostgres(db), runner, c, keys, log)
	consentSvc := consentservice.New(consentstore.NewPostgres(db), legalSvc, obStore, runner, c, keys, m, log)
	dsrSvc := dsrservice.New(dsrstore.NewPostgres(db), obStore, runner, c, keys, m, log)

	// The law registry is reference data; seeding is idempotent.
	if err := legalSvc.SeedLaws(ctx); err != nil {
		log.Error("law seed failed", "error", err)
		os.Exit(1)
	}

	health := httptransport.NewHealth(db, redisClient)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Sessions:  authSvc,
		Tokens:    authSvc,
		Services:  services,
		Health:    health,
		Auth:      authhandler.New(authSvc, log),
		Sanctions: sanctionhandler.New(sanctionSvc, log),
		Legal:     legalhandler.New(legalSvc, log),
		Consents:  consenthandler.New(consentSvc, log),
		DSR:       dsrhandler.New(dsrSvc, log),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return obWorker.Run(ctx) })
	if cfg.Sweep.SanctionEnabled {
		g.Go(func() error { return sanctionSvc.Sweep(ctx, cfg.Sweep.SanctionInterval) })
	}
	if cfg.Sweep.ConsentEnabled {
		g.Go(func() error { return consentSvc.Sweep(ctx) })
	}
	if cfg.Sweep.EscalationEnabled {
		g.Go(func() error { return dsrSvc.Escalate(ctx) })
		g.Go(func() error { return dsrSvc.RunDailySummary(ctx) })
	}
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Fail readiness first so the edge drains, then let in-flight
		// requests finish within the grace window.
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
