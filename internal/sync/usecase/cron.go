package usecase

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// ErrCycleInFlight is returned by TriggerOnce when a sync cycle is already
// running.
var ErrCycleInFlight = errors.New("sync cycle already in flight")

// Cron drives sync cycles on a fixed period. Cycles never overlap: if the
// previous one is still running when the ticker fires, the tick is skipped
// and logged.
type Cron struct {
	scheduler *Scheduler
	executor  *Executor
	period    time.Duration

	inFlight atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

func NewCron(scheduler *Scheduler, executor *Executor, period time.Duration) *Cron {
	if period <= 0 {
		period = 2 * time.Minute
	}
	return &Cron{
		scheduler: scheduler,
		executor:  executor,
		period:    period,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Cron) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		log.Printf("[Cron] Sync scheduler started, period %s", c.period)
		for {
			select {
			case <-ticker.C:
				if err := c.runCycle(context.Background()); err != nil && !errors.Is(err, ErrCycleInFlight) {
					log.Printf("[Cron] Cycle failed: %v", err)
				}
			case <-c.stop:
				return
			}
		}
	}()
}

func (c *Cron) Stop() {
	close(c.stop)
	<-c.done
	log.Println("[Cron] Sync scheduler stopped")
}

// TriggerOnce runs a single cycle immediately, subject to the same
// non-reentrancy guard as the ticker.
func (c *Cron) TriggerOnce(ctx context.Context) error {
	return c.runCycle(ctx)
}

func (c *Cron) runCycle(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		log.Println("[Cron] Previous cycle still running, skipping")
		return ErrCycleInFlight
	}
	defer c.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Cron] Recovered from cycle panic: %v", r)
		}
	}()

	batches, err := c.scheduler.DueBatches(time.Now())
	if err != nil {
		return err
	}
	for _, batch := range batches {
		c.executor.RunBatch(ctx, batch)
	}
	return nil
}
