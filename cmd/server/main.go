package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	httpadapter "verity/internal/adapters/http"
	"verity/internal/adapters/mlscan"
	pg "verity/internal/adapters/postgres"
	redisadapter "verity/internal/adapters/redis"
	"verity/internal/config"
	"verity/internal/domain"
	"verity/internal/logger"
	"verity/internal/ports"
	"verity/internal/services/assignment"
	"verity/internal/services/dashboard"
	"verity/internal/services/ingest"
	"verity/internal/services/review"
	"verity/internal/services/websites"
	"verity/internal/services/workflow"
	"verity/internal/workers/ingestrunner"
)

func main() {
	_ = godotenv.Load()

	cfg, cfgErr := config.Load()
	log, err := logger.New(cfg.LogLevel, cfg.Env == "development")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if cfgErr != nil {
		log.Fatal("config", zap.Error(cfgErr))
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	var kpiCache ports.KPICache
	if cfg.RedisAddr != "" {
		cache, err := redisadapter.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer cache.Close()
		kpiCache = cache
	}

	scanner := mlscan.New(cfg.ScannerURL)
	policy := domain.ConsensusPolicy{TieBreak: cfg.ConsensusTieBreak}

	wf := workflow.New(db, db, db, log)
	siteSvc := websites.New(db, db, log)
	assignSvc := assignment.New(db, wf, cfg.MaxExpertLoad, log)
	reviewSvc := review.New(db, db, db, wf, policy, log)
	ingestSvc := ingest.New(db, db, scanner, wf, cfg.ScanTimeout, log)
	dashSvc := dashboard.New(db, kpiCache, log)

	if cfg.IngestWorkers > 0 {
		ingestrunner.Run(ctx, db, ingestSvc, cfg.IngestWorkers, 500*time.Millisecond, log)
		log.Info("ingestion workers started", zap.Int("count", cfg.IngestWorkers))
	}

	srv := httpadapter.New(siteSvc, assignSvc, reviewSvc, wf, dashSvc, cfg.JWTSecret, log)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	server := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	log.Info("listening", zap.String("addr", cfg.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	case err := <-errCh:
		log.Fatal("server error", zap.Error(err))
	}
}
