package ai

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerService wraps a Service with a circuit breaker so a misbehaving
// provider fails fast instead of tying up pipeline workers. An open circuit
// surfaces as a hard error, which the job retry policy handles.
type BreakerService struct {
	inner Service
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerService(inner Service) *BreakerService {
	return &BreakerService{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ai",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (b *BreakerService) ClassifyEmail(ctx context.Context, emailText string) (*Classification, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ClassifyEmail(ctx, emailText)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Classification), nil
}

func (b *BreakerService) GenerateReply(ctx context.Context, req *ReplyRequest) (*ReplyDraft, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GenerateReply(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ReplyDraft), nil
}
