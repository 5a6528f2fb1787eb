package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"covercheck/internal/abusegate"
	admissionconfig "covercheck/internal/admission/config"
	admissionmetrics "covercheck/internal/admission/metrics"
	admissionservice "covercheck/internal/admission/service"
	"covercheck/internal/admission/store/window"
	"covercheck/internal/consensus"
	consensusmetrics "covercheck/internal/consensus/metrics"
	"covercheck/internal/ledger"
	"covercheck/internal/platform/config"
	"covercheck/internal/platform/httpserver"
	"covercheck/internal/platform/logger"
	"covercheck/internal/platform/postgres"
	platformredis "covercheck/internal/platform/redis"
	"covercheck/internal/retention"
	"covercheck/internal/submission"
	"covercheck/internal/sybil"
	httptransport "covercheck/internal/transport/http"
	"covercheck/internal/verification/store"
	"covercheck/pkg/identity"
)

const shutdownGrace = 10 * time.Second

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deriver := identity.NewDeriver(cfg.IdentitySalt)

	// Persistence: Postgres when configured, in-memory otherwise.
	var verificationStore store.Store
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		verificationStore = pg
		log.Info("using postgres store")
	} else {
		verificationStore = store.NewMemoryStore()
		log.Warn("no postgres DSN configured, using in-memory store")
	}

	// Admission: shared Redis window when configured, always a local fallback.
	local := window.NewMemoryStore()
	primary := window.Store(local)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		primary = window.NewRedisStore(redisClient)
		log.Info("using redis admission store")
	} else {
		log.Warn("no redis URL configured, admission runs on local store only")
	}

	tiers := admissionconfig.Default().
		WithAbuseFallback(cfg.AbuseGate.FallbackMaxRequests, cfg.AbuseGate.FallbackWindow)
	admissionSvc, err := admissionservice.New(primary, local,
		admissionservice.WithLogger(log),
		admissionservice.WithMetrics(admissionmetrics.New()),
		admissionservice.WithTiers(tiers),
		admissionservice.WithStoreTimeout(cfg.AdmissionStoreTimeout),
	)
	if err != nil {
		return err
	}

	consensusSvc, err := consensus.New(verificationStore,
		consensus.WithLogger(log),
		consensus.WithMetrics(consensusmetrics.New()),
	)
	if err != nil {
		return err
	}

	guard, err := sybil.New(verificationStore, sybil.WithLogger(log))
	if err != nil {
		return err
	}

	var evaluator abusegate.Evaluator
	if cfg.AbuseGate.URL != "" {
		evaluator = abusegate.NewHTTPEvaluator(cfg.AbuseGate.URL, cfg.AbuseGate.Secret)
	}
	gate := abusegate.NewGate(evaluator, cfg.AbuseGate.ScoreThreshold)

	submissionSvc, err := submission.New(verificationStore, admissionSvc, guard, consensusSvc,
		submission.WithLogger(log),
		submission.WithMetrics(submission.NewMetrics()),
		submission.WithAbuseGate(gate),
	)
	if err != nil {
		return err
	}

	ledgerSvc, err := ledger.New(verificationStore, consensusSvc, ledger.WithLogger(log))
	if err != nil {
		return err
	}

	retentionJob, err := retention.NewJob(verificationStore, consensusSvc,
		retention.WithLogger(log),
		retention.WithMetrics(retention.NewMetrics()),
		retention.WithInterval(cfg.Retention.Interval),
		retention.WithBatchSize(cfg.Retention.BatchSize),
	)
	if err != nil {
		return err
	}

	handler := httptransport.New(log, submissionSvc, ledgerSvc, consensusSvc, retentionJob, admissionSvc, deriver)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return retentionJob.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
