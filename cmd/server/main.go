// Command server runs the batch control plane's public HTTP surface:
// intake, cancel, worker-trigger, and read-only batch/clip status
// endpoints (spec.md §6).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/clipforge/clipforge/internal/adapter/httpserver"
	"github.com/clipforge/clipforge/internal/adapter/observability"
	"github.com/clipforge/clipforge/internal/adapter/repo/postgres"
	qdrantcli "github.com/clipforge/clipforge/internal/adapter/vector/qdrant"
	"github.com/clipforge/clipforge/internal/app"
	"github.com/clipforge/clipforge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", slog.Any("error", err))
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	var qcli *qdrantcli.Client
	if cfg.QdrantURL != "" {
		qcli = qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
		app.EnsureDefaultCollections(ctx, qcli, cfg)
	}

	batchRepo := postgres.NewBatchRepo(pool)
	clipRepo := postgres.NewClipRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	creditRepo := postgres.NewCreditRepo(pool)

	dbCheck, redisCheck, qdrantCheck := app.BuildReadinessChecks(cfg, pool, redisClient)

	// cmd/server does not drive jobs itself (that's cmd/worker's FastTicker).
	// /v1/worker here is answered by noopWorker, which never claims a job and
	// always returns processed=false — wiring a full Deps set into cmd/server
	// would duplicate cmd/worker's provider/rate-limit setup for an endpoint
	// this deployment topology does not need.
	var noWorker httpserver.WorkerRunner = noopWorker{}

	srv := httpserver.NewServer(cfg, batchRepo, clipRepo, jobRepo, creditRepo, noWorker, dbCheck, redisCheck, qdrantCheck)
	handler := app.BuildAPIRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

type noopWorker struct{}

func (noopWorker) RunOnce(ctx context.Context) (httpserver.RunOnceResult, error) {
	return httpserver.RunOnceResult{Processed: false}, nil
}
