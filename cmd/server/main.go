package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prepguard/internal/audit"
	"prepguard/internal/consent"
	"prepguard/internal/directory"
	"prepguard/internal/erasure"
	"prepguard/internal/keymanager"
	"prepguard/internal/platform/config"
	"prepguard/internal/platform/database"
	"prepguard/internal/platform/filestore"
	"prepguard/internal/platform/health"
	"prepguard/internal/platform/logger"
	"prepguard/internal/platform/metrics"
	"prepguard/internal/privacy"
	"prepguard/internal/retention"
	"prepguard/internal/risk"
	"prepguard/internal/sessiondata"
	"prepguard/migrations"
	psync "prepguard/pkg/platform/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// stores groups every persistence backend behind one struct so main can swap
// the whole set between Postgres and in-memory based on configuration.
type stores struct {
	audit    audit.Store
	keys     keymanager.Store
	consents consent.Store
	privacy  privacy.Store
	risk     risk.Store
	policies retention.Store
	erasure  erasure.Store
	data     sessiondata.Store
}

func buildStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			audit:    audit.NewInMemoryStore(),
			keys:     keymanager.NewInMemoryStore(),
			consents: consent.NewInMemoryStore(),
			privacy:  privacy.NewInMemoryStore(),
			risk:     risk.NewInMemoryStore(),
			policies: retention.NewInMemoryStore(),
			erasure:  erasure.NewInMemoryStore(),
			data:     sessiondata.NewInMemoryStore(),
		}
	}
	return stores{
		audit:    audit.NewPostgresStore(db),
		keys:     keymanager.NewPostgresStore(db),
		consents: consent.NewPostgresStore(db),
		privacy:  privacy.NewPostgresStore(db),
		risk:     risk.NewPostgresStore(db),
		policies: retention.NewPostgresStore(db),
		erasure:  erasure.NewPostgresStore(db),
		data:     sessiondata.NewPostgresStore(db),
	}
}

// main wires high-level dependencies, exposes the ops router, and keeps the
// process lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing prepguard",
		"addr", cfg.Addr,
		"persistent", cfg.DatabaseURL != "",
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var db *sql.DB
	if pool != nil {
		defer pool.Close() //nolint:errcheck // best-effort on shutdown

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pool.Migrate(migrateCtx, migrations.FS); err != nil {
			cancel()
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		cancel()
		db = pool.DB()
	}

	st := buildStores(db)
	m := metrics.New()

	publisher := audit.NewPublisher(st.audit,
		audit.WithAsyncBuffer(cfg.AuditBufferSize),
		audit.WithPublisherLogger(log),
		audit.WithPublisherMetrics(m),
	)
	auditSvc := audit.NewService(st.audit, publisher)

	keySvc, err := keymanager.NewService(st.keys, cfg.MasterKeySecret,
		keymanager.WithAuditor(auditSvc),
		keymanager.WithMetrics(m),
		keymanager.WithLogger(log),
	)
	if err != nil {
		log.Error("key manager init failed", "error", err)
		os.Exit(1)
	}

	consentSvc := consent.NewService(st.consents, auditSvc,
		consent.WithMetrics(m),
		consent.WithLogger(log),
	)
	privacySvc := privacy.NewService(st.privacy, auditSvc)

	// The user directory is owned by the accounts service; this process only
	// sees it through the UserDirectory port. Until that integration lands the
	// in-memory directory backs local and staging deployments.
	users := directory.NewInMemoryDirectory()

	riskSvc, err := risk.NewService(st.risk, st.data, st.audit, users,
		risk.WithAuditor(auditSvc),
		risk.WithMetrics(m),
		risk.WithLogger(log),
	)
	if err != nil {
		log.Error("risk engine init failed", "error", err)
		os.Exit(1)
	}
	_ = riskSvc

	locks := psync.NewKeyedMutex()

	retentionSvc, err := retention.NewService(st.policies, st.data, privacySvc, auditSvc, locks,
		retention.WithPatternStore(st.risk),
		retention.WithAuditRetention(cfg.AuditRetention),
		retention.WithMetrics(m),
		retention.WithLogger(log),
	)
	if err != nil {
		log.Error("retention scheduler init failed", "error", err)
		os.Exit(1)
	}

	files, err := filestore.NewDiskStore(cfg.ExportDir)
	if err != nil {
		log.Error("export store init failed", "error", err)
		os.Exit(1)
	}

	erasureSvc, err := erasure.NewService(st.erasure, users, st.data, files, st.audit, cfg.DownloadSigningKey,
		erasure.WithAuditor(auditSvc),
		erasure.WithConsents(consentSvc),
		erasure.WithPrivacy(privacySvc),
		erasure.WithKeys(keySvc),
		erasure.WithPatternPurger(st.risk),
		erasure.WithLocks(locks),
		erasure.WithMetrics(m),
		erasure.WithLogger(log),
	)
	if err != nil {
		log.Error("erasure orchestrator init failed", "error", err)
		os.Exit(1)
	}

	processor := erasure.NewProcessor(erasureSvc,
		erasure.WithProcessorLogger(log),
	)
	processor.Start()

	sweeper := retention.NewSweeper([]retention.Task{
		{
			Name: "automated-cleanup",
			Run: func(ctx context.Context) error {
				_, err := retentionSvc.RunAutomatedCleanup(ctx)
				return err
			},
		},
		{
			Name: "expired-exports",
			Run: func(ctx context.Context) error {
				_, err := erasureSvc.CleanupExpiredExports(ctx)
				return err
			},
		},
	},
		retention.WithInterval(cfg.SweepInterval),
		retention.WithSweeperLogger(log),
	)
	sweeper.Start()

	healthHandler := health.New()
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting ops server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	sweeper.Stop()
	processor.Stop()
	publisher.Close()

	log.Info("server stopped")
}
