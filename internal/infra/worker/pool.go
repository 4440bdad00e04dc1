// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uvian-worker/internal/infra/logging"
)

// Task runs with the pool's task context, which is only cancelled when a
// shutdown outlives its grace period.
type Task func(ctx context.Context) error

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs at most n tasks at once. Submit blocks while all slots are busy.
type Pool struct {
	wg    sync.WaitGroup
	slots chan struct{}
	quit  chan struct{}
	once  sync.Once
	n     int

	taskCtx     context.Context
	cancelTasks context.CancelFunc
	log         *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		slots:       make(chan struct{}, workers),
		quit:        make(chan struct{}),
		n:           workers,
		taskCtx:     ctx,
		cancelTasks: cancel,
		log:         logging.Component(logger, "worker_pool"),
	}
}

func (p *Pool) Size() int { return p.n }

// InFlight is the number of occupied slots.
func (p *Pool) InFlight() int { return len(p.slots) }

// Submit waits for a free slot, then runs task on its own goroutine.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	case p.slots <- struct{}{}:
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Msg("task panicked")
			}
		}()
		if err := task(p.taskCtx); err != nil {
			p.log.Debug().Err(err).Msg("task returned error")
		}
	}()
	return nil
}

// Shutdown refuses new work and waits for running tasks. After grace the
// task context is cancelled and Shutdown waits a little longer.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.once.Do(func() { close(p.quit) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
		p.cancelTasks()
		return nil
	case <-t.C:
	}

	p.log.Warn().Int("in_flight", p.InFlight()).Dur("grace", grace).Msg("grace period over, cancelling tasks")
	p.cancelTasks()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("%d tasks still running after cancel", p.InFlight())
	}
}
