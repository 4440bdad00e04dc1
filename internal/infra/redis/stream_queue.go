// File: internal/infra/redis/stream_queue.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"uvian-worker/internal/config"
	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/infra/logging"
	"uvian-worker/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const jobField = "job"

var _ adapter.JobQueue = (*StreamQueue)(nil)

// StreamQueue is a JobQueue over a Redis stream and consumer group.
// Entries stay in the group's pending list until Complete or a dead-letter
// move; pending entries idle past their backoff are reclaimed by Claim.
type StreamQueue struct {
	cli         *redis.Client
	stream      string
	group       string
	consumer    string
	deadLetter  string
	block       time.Duration
	maxAttempts int64
	retryDelay  time.Duration
	log         *zerolog.Logger

	closed atomic.Bool

	mu       sync.Mutex
	lastScan time.Time
	inFlight map[string]struct{}
}

// NewStreamQueue creates the consumer group (and stream) when missing.
func NewStreamQueue(ctx context.Context, c *Client, cfg config.QueueConfig, logger *zerolog.Logger) (*StreamQueue, error) {
	q := &StreamQueue{
		cli:         c.cli,
		stream:      cfg.Name,
		group:       cfg.Group,
		consumer:    ConsumerName(cfg.Consumer),
		deadLetter:  cfg.DeadLetter,
		block:       cfg.Block,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		inFlight:    make(map[string]struct{}),
	}
	q.log = logging.Component(logger, "stream_queue")
	l := q.log.With().Str("stream", q.stream).Str("group", q.group).Str("consumer", q.consumer).Logger()
	q.log = &l

	err := q.cli.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s/%s: %w", q.stream, q.group, err)
	}
	return q, nil
}

// ConsumerName returns configured, or hostname-ULID so restarts never reuse
// a name that still owns pending entries.
func ConsumerName(configured string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	return host + "-" + strings.ToLower(ulid.Make().String())
}

func (q *StreamQueue) Consumer() string { return q.consumer }

func (q *StreamQueue) Enqueue(ctx context.Context, data map[string]any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode queue entry: %w", err)
	}
	id, err := q.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{jobField: string(b)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", q.stream, err)
	}
	metrics.IncQueueEvent(q.stream, "enqueued")
	return id, nil
}

// Claim returns a reclaimed entry when one is due, otherwise waits up to the
// configured block time for a new one. nil, nil means nothing arrived.
func (q *StreamQueue) Claim(ctx context.Context) (*adapter.QueuedJob, error) {
	if q.closed.Load() {
		return nil, domain.ErrQueueClosed
	}

	if q.scanDue() {
		job, err := q.reclaim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			q.log.Warn().Err(err).Msg("pending scan failed")
		} else if job != nil {
			return job, nil
		}
	}

	streams, err := q.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", q.stream, err)
	}

	for _, s := range streams {
		for _, msg := range s.Messages {
			data, err := decodeEntry(msg)
			if err != nil {
				q.log.Error().Err(err).Str("entry_id", msg.ID).Msg("undecodable entry")
				if derr := q.moveToDeadLetter(ctx, msg.ID, msg.Values[jobField], err.Error()); derr != nil {
					q.log.Error().Err(derr).Str("entry_id", msg.ID).Msg("dead-letter failed")
				}
				continue
			}
			metrics.IncQueueEvent(q.stream, "claimed")
			return q.track(msg.ID, data, 1), nil
		}
	}
	return nil, nil
}

func (q *StreamQueue) Complete(ctx context.Context, job *adapter.QueuedJob) error {
	q.release(job.ID)
	_, err := q.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, q.stream, q.group, job.ID)
		p.XDel(ctx, q.stream, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s: %w", job.ID, err)
	}
	metrics.IncQueueEvent(q.stream, "completed")
	return nil
}

// Fail leaves a retryable entry pending for a later reclaim. Anything else,
// or an entry out of attempts, goes to the dead-letter stream.
func (q *StreamQueue) Fail(ctx context.Context, job *adapter.QueuedJob, cause error, retryable bool) error {
	q.release(job.ID)
	if retryable && job.Deliveries < q.maxAttempts {
		metrics.IncQueueEvent(q.stream, "retry")
		q.log.Warn().Err(cause).
			Str("entry_id", job.ID).
			Int64("deliveries", job.Deliveries).
			Dur("retry_in", RetryBackoff(q.retryDelay, job.Deliveries)).
			Msg("entry left for redelivery")
		return nil
	}
	payload, err := json.Marshal(job.Data)
	if err != nil {
		return fmt.Errorf("encode dead-letter payload: %w", err)
	}
	return q.moveToDeadLetter(ctx, job.ID, string(payload), cause.Error())
}

// Touch resets the entry's idle time without counting a delivery.
func (q *StreamQueue) Touch(ctx context.Context, job *adapter.QueuedJob) error {
	err := q.cli.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		Messages: []string{job.ID},
	}).Err()
	if err != nil {
		return fmt.Errorf("touch %s: %w", job.ID, err)
	}
	return nil
}

// Close stops further claims. The connection belongs to Client.
func (q *StreamQueue) Close() error {
	q.closed.Store(true)
	return nil
}

func (q *StreamQueue) moveToDeadLetter(ctx context.Context, id string, payload any, reason string) error {
	if payload == nil {
		payload = ""
	}
	_, err := q.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: q.deadLetter,
			Values: map[string]interface{}{
				jobField:    payload,
				"error":     reason,
				"source_id": id,
				"failed_at": time.Now().UTC().Format(time.RFC3339),
			},
		})
		p.XAck(ctx, q.stream, q.group, id)
		p.XDel(ctx, q.stream, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", id, err)
	}
	metrics.IncQueueEvent(q.stream, "dead_lettered")
	q.log.Warn().Str("entry_id", id).Str("reason", reason).Str("dead_letter", q.deadLetter).Msg("entry dead-lettered")
	return nil
}

func (q *StreamQueue) track(id string, data map[string]any, deliveries int64) *adapter.QueuedJob {
	q.mu.Lock()
	q.inFlight[id] = struct{}{}
	q.mu.Unlock()
	return &adapter.QueuedJob{ID: id, Data: data, Deliveries: deliveries, ClaimedAt: time.Now()}
}

func (q *StreamQueue) release(id string) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

func (q *StreamQueue) isInFlight(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inFlight[id]
	return ok
}

// decodeEntry reads the JSON "job" field. Entries without one are taken
// as flat field maps, which is what plain XADD producers write.
func decodeEntry(msg redis.XMessage) (map[string]any, error) {
	raw, ok := msg.Values[jobField]
	if !ok {
		if len(msg.Values) == 0 {
			return nil, fmt.Errorf("entry %s is empty", msg.ID)
		}
		data := make(map[string]any, len(msg.Values))
		for k, v := range msg.Values {
			data[k] = v
		}
		return data, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("entry %s: job field is %T", msg.ID, raw)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, fmt.Errorf("entry %s: decode job: %w", msg.ID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("entry %s: job is not an object", msg.ID)
	}
	return data, nil
}
