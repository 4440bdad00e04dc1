package inference

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"uvian-worker/internal/domain"
	"uvian-worker/internal/domain/ports/adapter"
	"uvian-worker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.ChatStreamer = (*Bridge)(nil)

// Bridge runs a blocking ChunkSource on its own goroutine and exposes the
// result as a single-pass token sequence.
type Bridge struct {
	source  adapter.ChunkSource
	buffer  int
	counter *TokenCounter
	log     *zerolog.Logger
}

func NewBridge(source adapter.ChunkSource, buffer int, counter *TokenCounter, logger *zerolog.Logger) *Bridge {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bridge{source: source, buffer: buffer, counter: counter, log: logger}
}

// OpenStream starts the producer immediately. The returned stream must be
// iterated or closed, otherwise the producer stays parked on the hand-off
// channel until ctx ends.
func (b *Bridge) OpenStream(ctx context.Context, req adapter.ChatRequest) adapter.TokenStream {
	ctx, cancel := context.WithCancel(ctx)
	provider := b.source.Name()
	l := b.log.With().Str("provider", provider).Str("job_id", req.JobID).Logger()

	if b.counter != nil {
		metrics.AddPromptTokens(provider, b.counter.Count(req.Messages))
	}

	s := &Stream{
		items:    make(chan item, b.buffer),
		done:     make(chan struct{}),
		cancel:   cancel,
		provider: provider,
		started:  time.Now(),
		log:      &l,
	}
	go s.produce(ctx, b.source, req)
	return s
}

// item is either a raw chunk or a terminal error.
type item struct {
	chunk any
	err   error
}

// Stream is the consumer side of one bridged upstream call.
// The closed items channel is the end-of-stream sentinel.
type Stream struct {
	items    chan item
	done     chan struct{}
	cancel   context.CancelFunc
	closer   sync.Once
	consumed atomic.Bool

	provider string
	started  time.Time
	chunks   int
	tokens   int
	log      *zerolog.Logger
}

func (s *Stream) produce(ctx context.Context, src adapter.ChunkSource, req adapter.ChatRequest) {
	defer close(s.items)
	defer func() {
		if r := recover(); r != nil {
			s.send(item{err: fmt.Errorf("stream producer panic: %v", r)})
		}
	}()

	err := src.Produce(ctx, req, func(chunk any) error {
		if !s.send(item{chunk: chunk}) {
			return context.Canceled
		}
		return nil
	})
	if err != nil {
		s.send(item{err: err})
	}
}

// send blocks until the consumer takes the item or closes the stream.
func (s *Stream) send(it item) bool {
	select {
	case s.items <- it:
		return true
	case <-s.done:
		return false
	}
}

// Tokens yields normalized tokens in upstream order. An upstream failure is
// yielded once as a non-nil error and ends the sequence. Malformed chunks
// are logged and skipped. A second iteration yields only ErrStreamClosed.
func (s *Stream) Tokens() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield("", domain.ErrStreamClosed)
			return
		}
		defer s.Close()

		for it := range s.items {
			if it.err != nil {
				s.observe(it.err)
				yield("", it.err)
				return
			}
			s.chunks++
			tok, ok, err := NormalizeChunk(it.chunk)
			if err != nil {
				metrics.IncChunkParseError(s.provider)
				s.log.Warn().Err(err).Msg("skipping malformed chunk")
				continue
			}
			if !ok {
				continue
			}
			s.tokens++
			if !yield(tok, nil) {
				return
			}
		}
		s.observe(nil)
	}
}

// Close releases the producer. Safe to call more than once.
func (s *Stream) Close() {
	s.closer.Do(func() {
		close(s.done)
		s.cancel()
	})
}

func (s *Stream) observe(err error) {
	d := time.Since(s.started)
	metrics.ObserveStream(s.provider, d, s.chunks, s.tokens, err)
	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Int("chunks", s.chunks).Int("tokens", s.tokens).Dur("elapsed", d).Msg("stream finished")
}
