// File: internal/infra/redis/recovery.go
package redis

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

const (
	recoverBatch = 16
	maxBackoff   = time.Hour
)

// RetryBackoff is base*2^(deliveries-1), capped at an hour.
func RetryBackoff(base time.Duration, deliveries int64) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := int64(1); i < deliveries; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (q *StreamQueue) scanDue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	every := q.retryDelay
	if every <= 0 || every > q.block {
		every = q.block
	}
	if time.Since(q.lastScan) < every {
		return false
	}
	q.lastScan = time.Now()
	return true
}

// reclaim walks the whole pending list, a page at a time. Entries past max
// attempts are dead-lettered; the first entry idle past its backoff is
// claimed.
func (q *StreamQueue) reclaim(ctx context.Context) (*adapter.QueuedJob, error) {
	start := "-"
	for {
		pending, err := q.cli.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: q.stream,
			Group:  q.group,
			Start:  start,
			End:    "+",
			Count:  recoverBatch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("xpending %s: %w", q.stream, err)
		}

		for _, p := range pending {
			job, err := q.reclaimEntry(ctx, p)
			if err != nil || job != nil {
				return job, err
			}
		}
		if len(pending) < recoverBatch {
			return nil, nil
		}
		next, ok := nextStreamID(pending[len(pending)-1].ID)
		if !ok {
			return nil, nil
		}
		start = next
	}
}

func (q *StreamQueue) reclaimEntry(ctx context.Context, p redis.XPendingExt) (*adapter.QueuedJob, error) {
	if q.isInFlight(p.ID) {
		return nil, nil
	}
	need := RetryBackoff(q.retryDelay, p.RetryCount)
	if p.Idle < need {
		return nil, nil
	}

	if p.RetryCount >= q.maxAttempts {
		var payload any
		if msgs, err := q.cli.XRangeN(ctx, q.stream, p.ID, p.ID, 1).Result(); err == nil && len(msgs) > 0 {
			payload = msgs[0].Values[jobField]
		}
		reason := fmt.Sprintf("exceeded %d delivery attempts", q.maxAttempts)
		return nil, q.moveToDeadLetter(ctx, p.ID, payload, reason)
	}

	msgs, err := q.cli.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  need,
		Messages: []string{p.ID},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", p.ID, err)
	}
	if len(msgs) == 0 {
		// Another consumer got there first.
		return nil, nil
	}
	data, err := decodeEntry(msgs[0])
	if err != nil {
		return nil, q.moveToDeadLetter(ctx, p.ID, msgs[0].Values[jobField], err.Error())
	}
	metrics.IncQueueEvent(q.stream, "reclaimed")
	q.log.Info().
		Str("entry_id", p.ID).
		Str("previous_consumer", p.Consumer).
		Int64("deliveries", p.RetryCount+1).
		Msg("reclaimed pending entry")
	return q.track(p.ID, data, p.RetryCount+1), nil
}

// nextStreamID returns the smallest id after id, so XPENDING ranges can
// resume without the exclusive "(" form older servers reject.
func nextStreamID(id string) (string, bool) {
	ms, seq, found := strings.Cut(id, "-")
	if !found {
		return "", false
	}
	m, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return "", false
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", false
	}
	if n == math.MaxUint64 {
		if m == math.MaxUint64 {
			return "", false
		}
		return strconv.FormatUint(m+1, 10) + "-0", true
	}
	return ms + "-" + strconv.FormatUint(n+1, 10), true
}
