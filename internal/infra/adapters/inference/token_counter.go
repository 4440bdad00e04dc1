package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"uvian-worker/internal/domain/ports/adapter"
)

// TokenCounter estimates prompt size for metrics. Count never blocks: until
// Load has fetched the encoding (tiktoken downloads it on first use) it
// falls back to a rune/4 estimate.
type TokenCounter struct {
	model string
	log   *zerolog.Logger

	once sync.Once
	done chan struct{}
	enc  atomic.Pointer[tiktoken.Tiktoken]

	loadEncoding func(model string) (*tiktoken.Tiktoken, error)
}

func NewTokenCounter(model string, logger *zerolog.Logger) *TokenCounter {
	return &TokenCounter{
		model:        model,
		log:          logger,
		done:         make(chan struct{}),
		loadEncoding: encodingFor,
	}
}

// Load starts fetching the encoding and waits for it until ctx ends. The
// fetch keeps going in the background after ctx expires. It reports whether
// the exact tokenizer is in use.
func (c *TokenCounter) Load(ctx context.Context) bool {
	c.once.Do(func() {
		go func() {
			defer close(c.done)
			enc, err := c.loadEncoding(c.model)
			if err != nil {
				c.log.Warn().Err(err).Str("model", c.model).Msg("tokenizer unavailable, using estimate")
				return
			}
			c.enc.Store(enc)
		}()
	})
	select {
	case <-c.done:
		return c.enc.Load() != nil
	case <-ctx.Done():
		c.log.Warn().Str("model", c.model).Msg("tokenizer still loading, using estimate for now")
		return false
	}
}

func (c *TokenCounter) Count(msgs []adapter.Message) int {
	enc := c.enc.Load()
	n := 0
	for _, m := range msgs {
		// role + separators per message, as in the chat format
		n += 4
		if enc != nil {
			n += len(enc.Encode(m.Content, nil, nil))
		} else {
			n += estimateTokens(m.Content)
		}
	}
	return n + 2
}

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	return enc, err
}

func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
