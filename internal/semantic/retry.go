package semantic

import (
	"context"
	"log/slog"
	"time"
)

const DefaultMaxAttempts = 3

// DefaultDelays is the wait sequence between attempts. The last entry
// repeats if MaxAttempts exceeds the sequence length.
var DefaultDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Policy is the single retry mechanism applied at the service boundary.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy retries transient failures only.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delays:      DefaultDelays,
		Retryable:   IsTransient,
	}
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// Sleeps are context-aware: a cancelled context cuts the wait short and
// surfaces the last failure.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		slog.Warn("[Semantic] Call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Delays) {
		idx = len(p.Delays) - 1
	}
	return p.Delays[idx]
}
