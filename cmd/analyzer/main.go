// Package main boots the article analyzer, wiring configuration, logger, Redis,
// Elasticsearch, the ML collaborators, and the batch processing pipeline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/beacon-news/analyzer/golang/internal/analyzer"
	"github.com/beacon-news/analyzer/golang/internal/batcher"
	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/domain"
	"github.com/beacon-news/analyzer/golang/internal/elastic"
	"github.com/beacon-news/analyzer/golang/internal/logger"
	"github.com/beacon-news/analyzer/golang/internal/ml"
	"github.com/beacon-news/analyzer/golang/internal/parser"
	core "github.com/beacon-news/analyzer/golang/internal/ports"
	redisx "github.com/beacon-news/analyzer/golang/internal/redis"
	"github.com/beacon-news/analyzer/golang/internal/scraper"
	"github.com/beacon-news/analyzer/golang/pkg/circuitbreaker"
)

// Application represents the main application
type Application struct {
	config      *config.Config
	logger      core.Logger
	metrics     *domain.Metrics
	redisClient core.RedisClient
	consumer    *redisx.StreamConsumer
	batcher     *batcher.Batcher
	scraperRepo core.ScraperRepository
	indexCB     core.CircuitBreaker
	healthSrv   *http.Server
	running     atomic.Bool
	wg          sync.WaitGroup
}

func main() {
	os.Exit(run())
}

// run contains the program logic and returns an exit code.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logr, err := logger.NewLogrusLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	app := &Application{
		config:  cfg,
		logger:  logr,
		metrics: domain.NewMetrics(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan error, 1)
	if err := app.Start(ctx, consumerDone); err != nil {
		logr.Error("failed to start application", core.Field{Key: "error", Value: err})
		return 1
	}

	if cfg.App.LogLevel == "debug" {
		app.wg.Add(1)
		go app.logMetrics(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logr.Info("received shutdown signal", core.Field{Key: "signal", Value: sig})
	case err := <-consumerDone:
		if err != nil {
			logr.Error("consumer terminated with error", core.Field{Key: "error", Value: err})
			exitCode = 1
		} else {
			logr.Info("consumer terminated")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	app.Shutdown(shutdownCtx, cancel)

	logr.Info("application shutdown complete")
	return exitCode
}

// Start wires the pipeline and launches the consumer loop.
func (app *Application) Start(ctx context.Context, consumerDone chan<- error) error {
	app.logger.Info("starting application",
		core.Field{Key: "name", Value: app.config.App.Name},
		core.Field{Key: "environment", Value: app.config.App.Environment},
		core.Field{Key: "mode", Value: app.config.App.Mode},
	)

	redisClient, err := redisx.NewClient(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	app.redisClient = redisClient

	if err := app.waitForRedisReady(ctx); err != nil {
		return err
	}

	writer, err := elastic.NewWriter(ctx, &app.config.Elastic, app.logger, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create index writer: %w", err)
	}

	classifier := ml.NewClassifier(&app.config.ML, app.logger)
	embedder := ml.NewEmbedder(&app.config.ML, app.config.Elastic.EmbeddingsDim, app.logger)

	app.indexCB = circuitbreaker.New(
		"index-bulk",
		app.config.CircuitBreaker.ErrorThreshold,
		app.config.CircuitBreaker.SuccessThreshold,
		app.config.CircuitBreaker.Timeout,
		app.config.CircuitBreaker.MaxConcurrentCalls,
		app.config.CircuitBreaker.RequestVolumeThreshold,
	)

	anlz := analyzer.New(
		app.logger,
		app.metrics,
		parser.New(app.logger, app.metrics),
		classifier,
		embedder,
		writer,
		app.indexCB,
		app.config.Elastic.EmbeddingsDim,
	)

	payloadField := "article"
	if app.config.App.Mode == config.ModeNotifications {
		payloadField = "done"

		repo, err := scraper.NewMongoRepository(ctx, &app.config.Mongo, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create scraper repository: %w", err)
		}
		app.scraperRepo = repo
	}

	app.batcher = batcher.New(&app.config.Batch, app.logger, app.metrics, app.makeReleaseFunc(anlz))
	app.batcher.Start(ctx)

	app.consumer = redisx.NewStreamConsumer(&app.config.Redis, app.redisClient, app.logger, app.metrics, payloadField)

	app.running.Store(true)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		defer app.running.Store(false)
		consumerDone <- app.consumer.Consume(ctx, app.batcher.HandleEntry)
	}()

	if app.config.Health.Enabled {
		app.startHealthServer()
	}

	app.logger.Info("application started successfully")
	return nil
}

// makeReleaseFunc builds the batch release callback for the configured mode.
func (app *Application) makeReleaseFunc(anlz *analyzer.Analyzer) batcher.ReleaseFunc {
	if app.config.App.Mode == config.ModeNotifications {
		return func(ctx context.Context, payloads [][]byte) error {
			var ids []string
			for _, payload := range payloads {
				notified, err := scraper.DecodeNotifications(payload)
				if err != nil {
					// Malformed notifications are dropped like parser rejects.
					app.logger.Error("skipping malformed notification payload",
						core.Field{Key: "error", Value: err},
						core.Field{Key: "payload", Value: string(payload)},
					)
					continue
				}
				ids = append(ids, notified...)
			}
			docs, err := app.scraperRepo.GetArticleBatch(ctx, ids)
			if err != nil {
				return err
			}
			_, err = anlz.Process(ctx, docs)
			return err
		}
	}

	return func(ctx context.Context, payloads [][]byte) error {
		_, err := anlz.Process(ctx, payloads)
		return err
	}
}

// Shutdown stops the pipeline: batcher timer first (with a best-effort drain
// while connections are still alive), then the consumer and reclaim loops,
// then the clients.
func (app *Application) Shutdown(ctx context.Context, cancel context.CancelFunc) {
	app.logger.Info("shutting down application")

	if app.batcher != nil {
		app.batcher.Stop()
	}

	// Stops the consumer loop and joins the reclaim task.
	cancel()

	if app.healthSrv != nil {
		if err := app.healthSrv.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shutdown health server", core.Field{Key: "error", Value: err})
		}
	}

	app.wg.Wait()

	if app.scraperRepo != nil {
		if err := app.scraperRepo.Close(ctx); err != nil {
			app.logger.Error("failed to close scraper repository", core.Field{Key: "error", Value: err})
		}
	}

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("failed to close redis client", core.Field{Key: "error", Value: err})
		}
	}
}

// waitForRedisReady blocks until the broker answers a ping.
func (app *Application) waitForRedisReady(ctx context.Context) error {
	for {
		redisCtx, redisCancel := context.WithTimeout(ctx, app.config.Health.RedisTimeout)
		err := app.redisClient.Ping(redisCtx)
		redisCancel()
		if err == nil {
			return nil
		}
		app.logger.Error("failed to connect to redis, will retry",
			core.Field{Key: "error", Value: err})
		select {
		case <-time.After(app.config.Redis.RetryInterval):
		case <-ctx.Done():
			return fmt.Errorf("context canceled before redis became ready: %w", ctx.Err())
		}
	}
}

// startHealthServer starts the health check HTTP server
func (app *Application) startHealthServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", app.healthHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/ready", app.readyHandler)
	mux.HandleFunc("/live", app.liveHandler)

	app.healthSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.Health.Port),
		Handler:      mux,
		ReadTimeout:  app.config.Health.ReadTimeout,
		WriteTimeout: app.config.Health.WriteTimeout,
	}

	app.wg.Add(1)
	go app.runHealthServer()
}

func (app *Application) runHealthServer() {
	defer app.wg.Done()
	app.logger.Info("starting health server", core.Field{Key: "port", Value: app.config.Health.Port})

	err := app.healthSrv.ListenAndServe()
	if err == nil || err == http.ErrServerClosed {
		return
	}

	app.logger.Error("health server error", core.Field{Key: "error", Value: err})
}

// healthHandler handles health check requests
func (app *Application) healthHandler(w http.ResponseWriter, _ *http.Request) {
	health := app.checkHealth()

	if health.Healthy {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339)); err != nil {
			app.logger.Error("failed to write health response", core.Field{Key: "error", Value: err})
		}
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := fmt.Fprintf(w, `{"status":"unhealthy","message":"%s","timestamp":"%s"}`,
			health.Message, time.Now().Format(time.RFC3339)); err != nil {
			app.logger.Error("failed to write health response", core.Field{Key: "error", Value: err})
		}
	}
}

// readyHandler handles readiness check requests
func (app *Application) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if app.running.Load() {
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, `{"status":"ready","timestamp":"%s"}`, time.Now().Format(time.RFC3339)); err != nil {
			app.logger.Error("failed to write ready response", core.Field{Key: "error", Value: err})
		}
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := fmt.Fprintf(w, `{"status":"not_ready","timestamp":"%s"}`, time.Now().Format(time.RFC3339)); err != nil {
			app.logger.Error("failed to write ready response", core.Field{Key: "error", Value: err})
		}
	}
}

// liveHandler handles liveness check requests
func (app *Application) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"status":"alive","timestamp":"%s"}`, time.Now().Format(time.RFC3339)); err != nil {
		app.logger.Error("failed to write live response", core.Field{Key: "error", Value: err})
	}
}

// checkHealth performs health checks on all components
func (app *Application) checkHealth() core.HealthStatus {
	redisCtx, cancel := context.WithTimeout(context.Background(), app.config.Health.RedisTimeout)
	defer cancel()

	if err := app.redisClient.Ping(redisCtx); err != nil {
		return core.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis health check failed: %v", err),
		}
	}

	if !app.running.Load() {
		return core.HealthStatus{
			Healthy: false,
			Message: "consumer not running",
		}
	}

	if app.indexCB.GetState() == "open" {
		return core.HealthStatus{
			Healthy: false,
			Message: "index circuit breaker is open",
		}
	}

	return core.HealthStatus{
		Healthy: true,
		Message: "all components healthy",
	}
}

// logMetrics periodically logs metrics to console when in debug mode
func (app *Application) logMetrics(ctx context.Context) {
	defer app.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := app.metrics.Snapshot()
			app.logger.Debug("metrics snapshot",
				core.Field{Key: "entries_received", Value: snapshot.EntriesReceived},
				core.Field{Key: "entries_acked", Value: snapshot.EntriesAcked},
				core.Field{Key: "entries_claimed", Value: snapshot.EntriesClaimed},
				core.Field{Key: "batches_released", Value: snapshot.BatchesReleased},
				core.Field{Key: "batches_failed", Value: snapshot.BatchesFailed},
				core.Field{Key: "payloads_rejected", Value: snapshot.PayloadsRejected},
				core.Field{Key: "articles_indexed", Value: snapshot.ArticlesIndexed},
				core.Field{Key: "categories_indexed", Value: snapshot.CategoriesIndexed},
				core.Field{Key: "index_failures", Value: snapshot.IndexFailures},
				core.Field{Key: "redis_errors", Value: snapshot.RedisErrors},
				core.Field{Key: "throughput_rate", Value: snapshot.ThroughputRate},
				core.Field{Key: "avg_analyze_time_ms", Value: snapshot.AvgAnalyzeTimeMs},
			)
		case <-ctx.Done():
			return
		}
	}
}
