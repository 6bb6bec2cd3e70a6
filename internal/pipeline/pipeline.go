package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pipeline accepts jobs and runs them through their stages. Callers enqueue
// and never care whether execution is backed by Redis or runs inline.
type Pipeline interface {
	EnqueueEmailProcessing(ctx context.Context, userID, emailID string) error
	EnqueueDraftGeneration(ctx context.Context, userID, emailID string) error
	EnqueueLearning(ctx context.Context, userID string) error
	Start()
	Stop()
}

// Options tunes worker counts and the retry policy.
type Options struct {
	ProcessingWorkers   int
	DraftWorkers        int
	LearningWorkers     int
	MaxAttempts         int
	LearningMaxAttempts int
	BackoffBase         time.Duration
	// LearningDelay defers learning jobs in inline mode so interactive stages
	// finish first.
	LearningDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.ProcessingWorkers <= 0 {
		o.ProcessingWorkers = 5
	}
	if o.DraftWorkers <= 0 {
		o.DraftWorkers = 3
	}
	if o.LearningWorkers <= 0 {
		o.LearningWorkers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.LearningMaxAttempts <= 0 {
		o.LearningMaxAttempts = 2
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.LearningDelay <= 0 {
		o.LearningDelay = 30 * time.Second
	}
	return o
}

// New builds the pipeline: durable Redis queues when a client is provided,
// inline goroutine execution otherwise. The stage handoff is wired back in
// either way.
func New(client *redis.Client, stages *Stages, opts Options) Pipeline {
	opts = opts.withDefaults()
	var p Pipeline
	if client != nil {
		log.Println("[Pipeline] Using Redis-backed queues")
		p = newRedisPipeline(client, stages, opts)
	} else {
		log.Println("[Pipeline] Redis not configured, running jobs inline")
		p = newInlinePipeline(stages, opts)
	}
	stages.SetEnqueuer(p)
	return p
}
