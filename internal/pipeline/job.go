package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of a pipeline job.
type JobType string

const (
	JobEmailProcessing JobType = "email.process"
	JobDraftGeneration JobType = "draft.generate"
	JobLearning        JobType = "learning.analyze"
)

// Job is one unit of asynchronous work. A job is owned exclusively by the
// pipeline while in flight; it references its source email by ID but does
// not own it. Lifecycle: queued -> running -> completed, or failed -> queued
// again after backoff, or dead once attempts reach MaxAttempts.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
}

type EmailProcessingPayload struct {
	UserID  string `json:"user_id"`
	EmailID string `json:"email_id"`
}

type DraftGenerationPayload struct {
	UserID  string `json:"user_id"`
	EmailID string `json:"email_id"`
}

type LearningPayload struct {
	UserID string `json:"user_id"`
}

// NewJob creates a queued job with a serialized payload.
func NewJob(jobType JobType, payload interface{}, maxAttempts int) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s payload: %w", jobType, err)
	}
	return &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     data,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}, nil
}

// Backoff returns the delay before the next attempt: the base delay doubles
// with every completed attempt, so retries are strictly increasingly spaced.
func (j *Job) Backoff(base time.Duration) time.Duration {
	if j.Attempts < 1 {
		return base
	}
	return base * time.Duration(1<<(j.Attempts-1))
}
