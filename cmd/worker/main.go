// Command worker runs the batch control plane's core (spec.md §4.2, §4.3):
// a FastTicker draining queued jobs through cfg.MaxWorkers parallel
// Worker.RunOnce lanes, and a Janitor sweeping for stuck/stale/retention work on a longer
// interval. It also exposes a minimal HTTP surface (/v1/worker, /healthz,
// /readyz, /metrics) so an external scheduler or operator can trigger a
// single run or probe liveness without a separate deployment.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpserver "github.com/clipforge/clipforge/internal/adapter/httpserver"
	"github.com/clipforge/clipforge/internal/adapter/observability"
	"github.com/clipforge/clipforge/internal/adapter/queue/redpanda"
	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/adapter/repo/postgres"
	"github.com/clipforge/clipforge/internal/adapter/storage"
	qdrantcli "github.com/clipforge/clipforge/internal/adapter/vector/qdrant"
	"github.com/clipforge/clipforge/internal/app"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
	"github.com/clipforge/clipforge/internal/provider/real"
	"github.com/clipforge/clipforge/internal/provider/script"
	"github.com/clipforge/clipforge/internal/provider/stub"
	"github.com/clipforge/clipforge/internal/scheduler"
	"github.com/clipforge/clipforge/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	var serviceLog domain.ServiceLogRepository = postgres.NewServiceLogRepo(pool)
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := redpanda.NewPublisher(cfg.KafkaBrokers, cfg.KafkaServiceLogTopic, logger)
		if err != nil {
			slog.Warn("redpanda publisher unavailable, service log stays postgres-only", slog.Any("error", err))
		} else {
			defer pub.Close()
			serviceLog = redpanda.MirroredServiceLog{Repo: postgres.NewServiceLogRepo(pool), Pub: pub}
		}
	}

	presets, err := config.LoadPresetCatalog(cfg.PresetsPath)
	if err != nil {
		slog.Error("load preset catalog failed", slog.Any("error", err))
		os.Exit(1)
	}

	store := storage.New(fmt.Sprintf("https://%s.example.com", cfg.StorageBucket))

	deps := buildWorkerDeps(cfg, pool, redisClient, batchRepo, clipRepo, jobRepo, creditRepo, serviceLog, store, presets)
	wk := worker.New(deps, logger)

	janitor := scheduler.NewJanitor(
		batchRepo, clipRepo, jobRepo, creditRepo, store,
		cfg.JanitorInterval,
		cfg.StuckRunningThreshold,
		time.Duration(cfg.IncompleteBatchHours)*time.Hour,
		time.Duration(cfg.FailedBatchHours)*time.Hour,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		time.Duration(cfg.DoneJobRetentionDays)*24*time.Hour,
		cfg.JanitorBatchLimit,
		logger,
	)
	go janitor.Run(ctx)

	ticker := scheduler.NewFastTicker(
		func(tctx context.Context) (scheduler.Result, error) {
			res, err := wk.RunOnce(tctx)
			if err != nil {
				return scheduler.Result{}, err
			}
			return scheduler.Result{Processed: res.Processed}, nil
		},
		cfg.FastTickInterval,
		cfg.MaxWorkers,
		domainJobTimeoutBudget(cfg),
		logger,
	)
	go ticker.Run(ctx)

	dbCheck, redisCheck, qdrantCheck := app.BuildReadinessChecks(cfg, pool, redisClient)
	workerAdapter := httpserverWorkerAdapter{w: wk}
	srv := httpserver.NewServer(cfg, batchRepo, clipRepo, jobRepo, creditRepo, workerAdapter, dbCheck, redisCheck, qdrantCheck)
	handler := app.BuildWorkerRouter(cfg, srv)

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
		slog.Info("worker http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker http server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// domainJobTimeoutBudget mirrors the job timeout so a fast-ticker tick never
// outlives the single job it might be draining when the tick boundary hits.
func domainJobTimeoutBudget(cfg config.Config) time.Duration {
	if cfg.JobTimeout > 0 {
		return cfg.JobTimeout
	}
	return 55 * time.Second
}

// buildWorkerDeps wires the stub or real provider set depending on
// cfg.UseStubProviders (spec §4.4's "swappable provider adapters").
func buildWorkerDeps(
	cfg config.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	batchRepo *postgres.BatchRepo,
	clipRepo *postgres.ClipRepo,
	jobRepo *postgres.JobRepo,
	creditRepo *postgres.CreditRepo,
	serviceLog domain.ServiceLogRepository,
	store *storage.Memory,
	presets *config.PresetCatalog,
) worker.Deps {
	base := worker.Deps{
		Batches:    batchRepo,
		Clips:      clipRepo,
		Jobs:       jobRepo,
		Credits:    creditRepo,
		ServiceLog: serviceLog,
		Storage:    store,
		Presets:    presets,
		Cfg:        cfg,
	}

	if cfg.UseStubProviders {
		base.Script = script.NewValidated(stub.NewScript())
		base.Voice = stub.NewVoice()
		base.Video = stub.NewVideo()
		base.Watermark = stub.NewWatermark()
		base.Compose = stub.NewCompose()
		base.Image = stub.NewImage()
		base.Research = stub.NewResearch()
		return base
	}

	cbm := provider.NewManager()
	buckets := map[string]ratelimit.BucketConfig{
		"script":   ratelimit.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
		"voice":    ratelimit.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
		"sora":     ratelimit.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
		"kling":    ratelimit.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
		"image":    ratelimit.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
		"research": ratelimit.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
	}
	limiter := ratelimit.NewRedisLuaLimiter(redisClient, pool, buckets)

	scriptAdapter := real.NewScript(cfg, cbm.GetOrCreate("script", cfg.BreakerMaxFailures, cfg.BreakerTimeout), limiter)
	base.Script = script.NewValidated(scriptAdapter)
	base.Voice = real.NewVoice(cfg, cbm.GetOrCreate("voice", cfg.BreakerMaxFailures, cfg.BreakerTimeout), limiter)
	base.Video = real.NewVideo(cfg, cbm, limiter)
	base.Watermark = real.NewWatermark(cfg, cbm.GetOrCreate("watermark", cfg.BreakerMaxFailures, cfg.BreakerTimeout), limiter)
	base.Compose = real.NewCompose(cfg, cbm.GetOrCreate("compose", cfg.BreakerMaxFailures, cfg.BreakerTimeout), limiter)
	base.Image = real.NewImage(cfg, cbm.GetOrCreate("image", cfg.BreakerMaxFailures, cfg.BreakerTimeout), limiter)
	base.Research = real.NewResearch(cfg, cbm.GetOrCreate("research", cfg.BreakerMaxFailures, cfg.BreakerTimeout), limiter, scriptAdapter)
	return base
}

// httpserverWorkerAdapter adapts worker.Worker to httpserver.WorkerRunner so
// httpserver does not need to import internal/worker directly.
type httpserverWorkerAdapter struct{ w *worker.Worker }

func (a httpserverWorkerAdapter) RunOnce(ctx context.Context) (httpserver.RunOnceResult, error) {
	res, err := a.w.RunOnce(ctx)
	if err != nil {
		return httpserver.RunOnceResult{}, err
	}
	return httpserver.RunOnceResult{
		Processed:  res.Processed,
		JobID:      res.JobID,
		JobType:    string(res.JobType),
		DurationMS: res.DurationMS,
		Error:      res.Error,
	}, nil
}
