package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/api"
	"github.com/scrapekit/scrapper/internal/blob"
	"github.com/scrapekit/scrapper/internal/clock/system"
	"github.com/scrapekit/scrapper/internal/config"
	"github.com/scrapekit/scrapper/internal/dispatcher"
	"github.com/scrapekit/scrapper/internal/extractor"
	collyfetcher "github.com/scrapekit/scrapper/internal/fetcher/colly"
	"github.com/scrapekit/scrapper/internal/fetcher/detector"
	"github.com/scrapekit/scrapper/internal/fetcher/headless"
	"github.com/scrapekit/scrapper/internal/hash/sha256"
	"github.com/scrapekit/scrapper/internal/id/uuid"
	pubmemory "github.com/scrapekit/scrapper/internal/publisher/memory"
	"github.com/scrapekit/scrapper/internal/publisher/pubsub"
	memqueue "github.com/scrapekit/scrapper/internal/queue/memory"
	"github.com/scrapekit/scrapper/internal/ratelimit"
	"github.com/scrapekit/scrapper/internal/robots"
	"github.com/scrapekit/scrapper/internal/scheduler"
	"github.com/scrapekit/scrapper/internal/scrape"
	"github.com/scrapekit/scrapper/internal/worker"
)

// pipeline bundles the run queue, worker pool, and scheduler built on
// top of an app's stores.
type pipeline struct {
	queue        *memqueue.Queue
	dispatcher   *dispatcher.Dispatcher
	scheduler    *scheduler.Scheduler
	probeFetcher scrape.Fetcher
	closers      []func()
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API, scheduler, and scrape workers",
		Long: `Runs the full service: the HTTP API for project management and record
access, the scheduler that submits interval-based runs, and the worker
pool that executes queued runs.`,

		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := buildPipeline(ctx, a)
	if err != nil {
		return err
	}
	defer pipe.close()

	server := api.NewServer(api.Deps{
		Projects:  a.projects,
		Results:   a.results,
		Enqueuer:  pipe.dispatcher,
		Fetcher:   pipe.probeFetcher,
		Extractor: extractor.New(),
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, a.cfg, a.logger.Named("api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go pipe.dispatcher.Run(ctx)
	pipe.scheduler.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.Int("port", a.cfg.Server.Port))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	pipe.scheduler.Stop()
	pipe.queue.Close()
	return nil
}

// buildPipeline wires the fetch-extract-store machinery for the
// configured backends.
func buildPipeline(ctx context.Context, a *app) (*pipeline, error) {
	cfg := a.cfg

	blobStore, closeBlob, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, closePub, err := buildPublisher(ctx, a)
	if err != nil {
		closeBlob()
		return nil, err
	}

	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	headlessFetcher, closeHeadless, err := buildHeadlessFetcher(a)
	if err != nil {
		closePub()
		closeBlob()
		return nil, err
	}

	queue := memqueue.NewQueue(cfg.Scraper.QueueDepth)
	clk := system.New()
	ids := uuid.New()

	workerDeps := worker.Deps{
		Queue:           queue,
		Results:         a.results,
		BlobStore:       blobStore,
		Publisher:       publisher,
		Hasher:          sha256.New(),
		Clock:           clk,
		IDs:             ids,
		ProbeFetcher:    probeFetcher,
		HeadlessFetcher: headlessFetcher,
		Detector:        detector.NewHeuristic(cfg.Headless.PromotionThresh),
		Extractor:       extractor.New(),
		Robots: robots.New(robots.Config{
			UserAgent:    cfg.Scraper.UserAgent,
			CacheTTL:     time.Duration(cfg.Robots.CacheTTLMin) * time.Minute,
			FetchTimeout: time.Duration(cfg.Robots.FetchTimeout) * time.Second,
		}),
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Scraper.HostRPS,
			DefaultBurst: cfg.Scraper.HostBurst,
		}),
		Retry: worker.NewRetryPolicy(
			cfg.HTTP.MaxRetries+1,
			time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
		),
	}
	workerCfg := worker.Config{
		ContentType: cfg.Storage.ContentType,
		BlobPrefix:  cfg.Storage.Prefix,
		Topic:       cfg.PubSub.TopicName,
		MaxPages:    cfg.Scraper.MaxPagesDefault,
	}

	workers := make([]*worker.Worker, 0, cfg.Scraper.Concurrency)
	for i := 0; i < cfg.Scraper.Concurrency; i++ {
		workers = append(workers, worker.New(workerDeps, workerCfg, a.logger.Named("worker")))
	}

	sched := scheduler.New(
		a.projects, a.results, queue, clk, ids,
		scheduler.Config{Tick: cfg.ScheduleTick()},
		a.logger.Named("scheduler"),
	)

	return &pipeline{
		queue:        queue,
		dispatcher:   dispatcher.New(queue, workers),
		scheduler:    sched,
		probeFetcher: probeFetcher,
		closers:      []func(){closeBlob, closePub, closeHeadless},
	}, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (scrape.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "gcs":
		store, err := blob.NewGCS(ctx, blob.GCSConfig{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := blob.NewLocal(blob.LocalConfig{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, func() {}, nil
	}
}

func buildPublisher(ctx context.Context, a *app) (scrape.Publisher, func(), error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no pubsub project configured, run events stay in process")
		return pubmemory.New(), func() {}, nil
	}
	pub, err := pubsub.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return pub, func() { _ = pub.Close() }, nil
}

func buildHeadlessFetcher(a *app) (scrape.Fetcher, func(), error) {
	if !a.cfg.Headless.Enabled {
		return headless.NewDisabled(), func() {}, nil
	}
	fetcher, err := headless.NewChromedp(headless.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Scraper.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	return fetcher, fetcher.Close, nil
}
