package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout    = errors.New("timeout reached")
	ErrMaxRetries = errors.New("max retries reached")
)

type Option func(r *Retry) *Retry

func WithMaxRetries(maxRetries uint) Option {
	return func(r *Retry) *Retry {
		r.maxRetries = int(maxRetries)
		return r
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *Retry) *Retry {
		r.timeout = timeout
		return r
	}
}

func WithInterval(interval time.Duration) Option {
	return func(r *Retry) *Retry {
		r.interval = interval
		return r
	}
}

type Retry struct {
	maxRetries int
	timeout    time.Duration
	interval   time.Duration
}

func NewRetry(options ...Option) *Retry {
	r := &Retry{}
	for _, opt := range options {
		opt(r)
	}
	if r.interval == 0 {
		r.interval = 100 * time.Millisecond
	}
	return r
}

func (r *Retry) Do(action func() error) error {
	return r.DoContext(context.Background(), action)
}

// DoContext runs action until it succeeds, ctx is done, the timeout passes or
// the retries run out. The last action error is wrapped in the result.
func (r *Retry) DoContext(ctx context.Context, action func() error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tries := 0
	for {
		err := action()
		if err == nil {
			return nil
		}
		tries++

		if r.maxRetries > 0 && tries >= r.maxRetries {
			return fmt.Errorf("%w: %v", ErrMaxRetries, err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}
