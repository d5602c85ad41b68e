package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryPolicy bounds an optimistic WATCH/MULTI/EXEC loop.  Attempts counts
// every transaction attempt; the pause between attempts starts at Base,
// doubles each time and is capped at Max.  Half of each pause is jitter so
// colliding writers spread out.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// metadataPolicy is used for admin writes and registrations, which rarely
// contend.
var metadataPolicy = RetryPolicy{Attempts: 10, Base: time.Millisecond, Max: 20 * time.Millisecond}

// run executes txf under WATCH on keys until it commits, returns a
// non-conflict error, or the budget runs out.  Exhausting the budget or the
// context yields an error wrapping ErrBusy.
func (p RetryPolicy) run(ctx context.Context, rdb redis.UniversalClient, txf func(*redis.Tx) error, keys ...string) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	pause := p.Base
	for attempt := 1; ; attempt++ {
		err := rdb.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if attempt >= attempts {
			return ErrBusy
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
		case <-time.After(jitter(pause)):
		}
		pause *= 2
		if pause > p.Max {
			pause = p.Max
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half+1)))
}
