package main

import (
	"context"
	"fmt"
	"time"

	"uvian-worker/internal/config"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/domain/ports/repository"
	"uvian-worker/internal/infra/adapters/inference"
	pg "uvian-worker/internal/infra/db/postgres"
	"uvian-worker/internal/infra/db/sqlite"
	red "uvian-worker/internal/infra/redis"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// storage is the repository set for the configured driver.
type storage struct {
	jobs          repository.JobRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository

	withTx func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
	ping   func(ctx context.Context) error
	close  func()

	// background runs until ctx ends; nil when the driver has nothing to sample.
	background func(ctx context.Context)
}

// openStorage connects the configured database. Conversation reads go
// through the Redis cache when cache is non-nil.
func openStorage(ctx context.Context, cfg *config.Config, cache red.RedisClient, logger *zerolog.Logger) (*storage, error) {
	var st *storage
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pg.NewPgxPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		tm := pg.NewTxManager(pool)
		st = &storage{
			jobs:          pg.NewPostgresJobRepo(pool),
			conversations: pg.NewPostgresConversationRepo(pool),
			messages:      pg.NewPostgresMessageRepo(pool),
			ping:          pool.Ping,
			close:         pool.Close,
		}
		st.withTx = func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
			return tm.WithTx(ctx, pgx.TxOptions{}, fn)
		}
		st.background = func(ctx context.Context) {
			pg.SamplePoolStats(ctx, pool, 15*time.Second)
		}
	case "sqlite":
		s, err := sqlite.New(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		st = &storage{
			jobs:          s,
			conversations: s.Conversations(),
			messages:      s,
			withTx:        s.WithTx,
			ping:          s.Ping,
			close:         func() { _ = s.Close() },
		}
		st.background = func(ctx context.Context) {
			s.SampleStats(ctx, 15*time.Second)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cache != nil {
		st.conversations = pg.NewConversationRepoCacheDecorator(st.conversations, cache, cfg.Redis.TTL, logger)
	}
	return st, nil
}

// newChunkSource picks the upstream provider and applies the concurrency cap.
func newChunkSource(ctx context.Context, cfg config.InferenceConfig, logger *zerolog.Logger) (adapter.ChunkSource, error) {
	var src adapter.ChunkSource
	switch cfg.Provider {
	case "runpod":
		client, err := inference.NewRunPodClient(cfg.RunPod, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		src = inference.NewPollingSource("runpod", client, cfg.RunPod.PollInterval, logger)
	case "openai":
		s, err := inference.NewOpenAISource(cfg.OpenAI, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		src = s
	case "gemini":
		s, err := inference.NewGeminiSource(ctx, cfg.Gemini, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		src = s
	case "echo":
		src = inference.NewEchoSource(20 * time.Millisecond)
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", cfg.Provider)
	}
	return inference.NewLimitedSource(src, cfg.ConcurrentLimit), nil
}

func heartbeatInterval(retryDelay time.Duration) time.Duration {
	hb := retryDelay / 2
	if hb < 500*time.Millisecond {
		hb = 500 * time.Millisecond
	}
	return hb
}
