package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueEmailProcessing = "pipeline:email.process"
	queueDraftGeneration = "pipeline:draft.generate"
	queueLearning        = "pipeline:learning.analyze"
)

// redisPipeline runs jobs against durable Redis lists, one list per stage,
// with a fixed worker pool per stage. Failed jobs are pushed back onto their
// list after a backoff; exhausted jobs are logged and dropped.
type redisPipeline struct {
	client *redis.Client
	stages *Stages
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRedisPipeline(client *redis.Client, stages *Stages, opts Options) *redisPipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &redisPipeline{
		client: client,
		stages: stages,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *redisPipeline) Start() {
	p.spawnWorkers(queueEmailProcessing, p.opts.ProcessingWorkers)
	p.spawnWorkers(queueDraftGeneration, p.opts.DraftWorkers)
	p.spawnWorkers(queueLearning, p.opts.LearningWorkers)
	log.Printf("[Pipeline] Redis workers started: %d processing, %d draft, %d learning",
		p.opts.ProcessingWorkers, p.opts.DraftWorkers, p.opts.LearningWorkers)
}

func (p *redisPipeline) Stop() {
	p.cancel()
	p.wg.Wait()
	log.Println("[Pipeline] Redis workers stopped")
}

func (p *redisPipeline) EnqueueEmailProcessing(ctx context.Context, userID, emailID string) error {
	job, err := NewJob(JobEmailProcessing, EmailProcessingPayload{UserID: userID, EmailID: emailID}, p.opts.MaxAttempts)
	if err != nil {
		return err
	}
	return p.push(ctx, queueEmailProcessing, job)
}

func (p *redisPipeline) EnqueueDraftGeneration(ctx context.Context, userID, emailID string) error {
	job, err := NewJob(JobDraftGeneration, DraftGenerationPayload{UserID: userID, EmailID: emailID}, p.opts.MaxAttempts)
	if err != nil {
		return err
	}
	return p.push(ctx, queueDraftGeneration, job)
}

// EnqueueLearning is immediate here: the dedicated learning pool already
// keeps it from competing with the interactive stages.
func (p *redisPipeline) EnqueueLearning(ctx context.Context, userID string) error {
	job, err := NewJob(JobLearning, LearningPayload{UserID: userID}, p.opts.LearningMaxAttempts)
	if err != nil {
		return err
	}
	return p.push(ctx, queueLearning, job)
}

func (p *redisPipeline) push(ctx context.Context, queue string, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job %s: %w", job.ID, err)
	}
	if err := p.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s on %s: %w", job.ID, queue, err)
	}
	return nil
}

func (p *redisPipeline) spawnWorkers(queue string, count int) {
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.worker(queue)
	}
}

func (p *redisPipeline) worker(queue string) {
	defer p.wg.Done()
	for {
		res, err := p.client.BRPop(p.ctx, 2*time.Second, queue).Result()
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			if err == redis.Nil {
				continue
			}
			log.Printf("[Pipeline] Queue read error on %s: %v", queue, err)
			time.Sleep(time.Second)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			log.Printf("[Pipeline] Discarding malformed job on %s: %v", queue, err)
			continue
		}
		p.process(&job, queue)
	}
}

func (p *redisPipeline) process(job *Job, queue string) {
	job.Attempts++
	err := p.stages.Process(p.ctx, job)
	if err == nil {
		return
	}

	data, backoff, dead := nextAttempt(job, p.opts.BackoffBase)
	if dead {
		log.Printf("[Pipeline] Job %s (%s) dead after %d attempts: %v", job.ID, job.Type, job.Attempts, err)
		return
	}

	log.Printf("[Pipeline] Job %s (%s) attempt %d/%d failed, requeueing in %s: %v",
		job.ID, job.Type, job.Attempts, job.MaxAttempts, backoff, err)
	time.AfterFunc(backoff, func() {
		if err := p.client.LPush(context.Background(), queue, data).Err(); err != nil {
			log.Printf("[Pipeline] Failed to requeue job %s: %v", job.ID, err)
		}
	})
}

// nextAttempt decides the fate of a failed job: the reserialized payload,
// carrying the attempt count, and the requeue delay, or dead when attempts
// are exhausted (or the job cannot be reserialized).
func nextAttempt(job *Job, base time.Duration) ([]byte, time.Duration, bool) {
	if job.Attempts >= job.MaxAttempts {
		return nil, 0, true
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, 0, true
	}
	return data, job.Backoff(base), false
}
