package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uvian-worker/internal/infra/adapters/inference"
	"uvian-worker/internal/infra/events"
	"uvian-worker/internal/infra/metrics"
	red "uvian-worker/internal/infra/redis"
	"uvian-worker/internal/infra/sched"
	"uvian-worker/internal/infra/web"
	"uvian-worker/internal/infra/worker"
	"uvian-worker/internal/usecase"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume jobs from the queue and stream results",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	logger.Info().Str("version", version).Str("commit", commit).Msg("starting worker")

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer st.close()

	queue, err := red.NewStreamQueue(ctx, redisClient, cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	defer queue.Close()
	metrics.SetWorkerInfo(version, commit, queue.Consumer())

	publisher := events.NewPublisher(red.NewPubSub(redisClient))

	// ---- Inference ----
	source, err := newChunkSource(ctx, cfg.Inference, logger)
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	counter := inference.NewTokenCounter(cfg.Inference.TokenizerModel, logger)
	lctx, cancelLoad := context.WithTimeout(ctx, 10*time.Second)
	exact := counter.Load(lctx)
	cancelLoad()
	bridge := inference.NewBridge(source, cfg.Inference.Buffer, counter, logger)
	logger.Info().Str("provider", source.Name()).Int("concurrent_limit", cfg.Inference.ConcurrentLimit).Bool("exact_tokenizer", exact).Msg("inference source ready")

	// ---- Executors ----
	registry, err := usecase.NewRegistry(
		usecase.NewChatExecutor(st.conversations, st.messages, bridge, publisher, usecase.ChatExecutorOptions{
			SystemPrompt: cfg.Inference.SystemPrompt,
			MaxTokens:    cfg.Inference.MaxTokens,
			Dev:          cfg.Runtime.Dev,
		}, logger),
		usecase.NewCompletionExecutor(bridge, publisher, cfg.Inference.SystemPrompt, cfg.Inference.MaxTokens, logger),
	)
	if err != nil {
		return fmt.Errorf("executors: %w", err)
	}
	dispatcher := usecase.NewDispatcher(st.jobs, registry, red.NewLocker(redisClient), cfg.Worker.LockTTL, logger)

	pool := worker.NewPool(cfg.Worker.Concurrency, logger)
	consumer := worker.NewJobConsumer(queue, dispatcher, pool, heartbeatInterval(cfg.Queue.RetryDelay), logger)

	logger.Info().
		Strs("job_types", registry.Types()).
		Str("queue", cfg.Queue.Name).
		Str("consumer", queue.Consumer()).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("worker ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })

	if cfg.Worker.ReapInterval > 0 {
		reaper := sched.NewJobReaper(cfg.Worker.ReapInterval, cfg.Worker.StaleAfter, st.jobs, logger)
		g.Go(func() error { return reaper.Run(gctx) })
	}

	if st.background != nil {
		g.Go(func() error {
			st.background(gctx)
			return nil
		})
	}

	// ---- Admin HTTP ----
	if cfg.Admin.Enabled {
		srv := web.NewServer(
			usecase.NewJobUseCase(st.jobs, queue, logger),
			web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
			[]web.ReadinessCheck{
				{Name: "database", Check: st.ping},
				{Name: "redis", Check: redisClient.Ping},
			},
			logger,
		)
		g.Go(func() error { return srv.Start(cfg.Admin.Port) })
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	runErr := g.Wait()
	logger.Info().Dur("grace", cfg.Worker.ShutdownGrace).Int("in_flight", pool.InFlight()).Msg("draining in-flight jobs")
	if err := pool.Shutdown(cfg.Worker.ShutdownGrace); err != nil {
		logger.Warn().Err(err).Msg("pool did not drain")
	}
	logger.Info().Msg("worker stopped")
	return runErr
}
