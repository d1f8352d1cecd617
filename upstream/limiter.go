package upstream

import (
	"context"
	"time"

	"github.com/beefsack/go-rate"
)

// limiter bounds the outbound request rate. A nil limiter never waits.
type limiter struct {
	rl *rate.RateLimiter
}

func newLimiter(perSecond int) *limiter {
	if perSecond <= 0 {
		return nil
	}
	return &limiter{rl: rate.New(perSecond, time.Second)}
}

// wait blocks until a slot is free or ctx is done.
func (l *limiter) wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		ok, remaining := l.rl.Try()
		if ok {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
