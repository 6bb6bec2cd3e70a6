package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAttemptRequeuesWithAttemptCount(t *testing.T) {
	job, err := NewJob(JobEmailProcessing, EmailProcessingPayload{UserID: "u1", EmailID: "m1"}, 3)
	require.NoError(t, err)
	job.Attempts = 1

	data, delay, dead := nextAttempt(job, 2*time.Second)
	require.False(t, dead)
	assert.Equal(t, 2*time.Second, delay)

	// The requeued payload is what a worker will pop next: the attempt count
	// must survive the round trip so the retry budget holds across workers.
	var requeued Job
	require.NoError(t, json.Unmarshal(data, &requeued))
	assert.Equal(t, job.ID, requeued.ID)
	assert.Equal(t, 1, requeued.Attempts)
	assert.Equal(t, 3, requeued.MaxAttempts)

	var p EmailProcessingPayload
	require.NoError(t, json.Unmarshal(requeued.Payload, &p))
	assert.Equal(t, "m1", p.EmailID)
}

func TestNextAttemptDelaysIncreaseStrictly(t *testing.T) {
	job, err := NewJob(JobDraftGeneration, DraftGenerationPayload{UserID: "u1", EmailID: "m1"}, 5)
	require.NoError(t, err)

	var last time.Duration
	for attempt := 1; attempt < job.MaxAttempts; attempt++ {
		job.Attempts = attempt
		_, delay, dead := nextAttempt(job, 2*time.Second)
		require.False(t, dead, "attempt %d still has budget", attempt)
		assert.Greater(t, delay, last)
		last = delay
	}
}

func TestNextAttemptDeadAtMaxAttempts(t *testing.T) {
	job, err := NewJob(JobLearning, LearningPayload{UserID: "u1"}, 2)
	require.NoError(t, err)

	job.Attempts = 2
	data, _, dead := nextAttempt(job, 2*time.Second)
	assert.True(t, dead)
	assert.Nil(t, data)
}
