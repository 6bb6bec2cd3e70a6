package pipeline

import (
	"context"
	"log"
	"sync"
	"time"
)

// inlinePipeline runs every job in its own goroutine with in-memory retries.
// Jobs do not survive a restart; this is the fallback mode for deployments
// without Redis.
type inlinePipeline struct {
	stages *Stages
	opts   Options
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func newInlinePipeline(stages *Stages, opts Options) *inlinePipeline {
	return &inlinePipeline{stages: stages, opts: opts}
}

func (p *inlinePipeline) Start() {
	log.Println("[Pipeline] Inline mode started")
}

// Stop waits for in-flight jobs, including pending retries, to finish.
func (p *inlinePipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
	log.Println("[Pipeline] Inline mode stopped")
}

func (p *inlinePipeline) EnqueueEmailProcessing(ctx context.Context, userID, emailID string) error {
	job, err := NewJob(JobEmailProcessing, EmailProcessingPayload{UserID: userID, EmailID: emailID}, p.opts.MaxAttempts)
	if err != nil {
		return err
	}
	p.submit(job, 0)
	return nil
}

func (p *inlinePipeline) EnqueueDraftGeneration(ctx context.Context, userID, emailID string) error {
	job, err := NewJob(JobDraftGeneration, DraftGenerationPayload{UserID: userID, EmailID: emailID}, p.opts.MaxAttempts)
	if err != nil {
		return err
	}
	p.submit(job, 0)
	return nil
}

// EnqueueLearning defers the job so the interactive stages of a fresh sync
// finish before the heavier sent-mail sampling begins.
func (p *inlinePipeline) EnqueueLearning(ctx context.Context, userID string) error {
	job, err := NewJob(JobLearning, LearningPayload{UserID: userID}, p.opts.LearningMaxAttempts)
	if err != nil {
		return err
	}
	p.submit(job, p.opts.LearningDelay)
	return nil
}

func (p *inlinePipeline) submit(job *Job, delay time.Duration) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		log.Printf("[Pipeline] Dropping job %s (%s): pipeline stopped", job.ID, job.Type)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		p.run(job)
	}()
}

func (p *inlinePipeline) run(job *Job) {
	for {
		job.Attempts++
		err := p.stages.Process(context.Background(), job)
		if err == nil {
			return
		}
		if job.Attempts >= job.MaxAttempts {
			log.Printf("[Pipeline] Job %s (%s) dead after %d attempts: %v", job.ID, job.Type, job.Attempts, err)
			return
		}
		backoff := job.Backoff(p.opts.BackoffBase)
		log.Printf("[Pipeline] Job %s (%s) attempt %d/%d failed, retrying in %s: %v",
			job.ID, job.Type, job.Attempts, job.MaxAttempts, backoff, err)
		time.Sleep(backoff)
	}
}
