package gemini

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// throttle bir vaqtdagi so'rovlar sonini va ular orasidagi minimal intervalni cheklaydi
type throttle struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

func newThrottle(maxConcurrent int, minInterval time.Duration) *throttle {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &throttle{
		sem:     make(chan struct{}, maxConcurrent),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (t *throttle) acquire(ctx context.Context) (func(), error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := t.limiter.Wait(ctx); err != nil {
		<-t.sem
		return nil, err
	}

	return func() {
		<-t.sem
	}, nil
}
