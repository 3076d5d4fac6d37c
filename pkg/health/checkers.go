package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process runs more than limit
// goroutines, which usually means fulfillment runs or webhook handlers are
// piling up.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, limit)
		}
		return nil
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks a dependency through its Ping method.
func PingCheck(name string, p Pinger) CheckFunc {
	return PingFunc(name, p.Ping)
}

// PingFunc checks a dependency through an arbitrary ping call, e.g. a Redis
// client whose Ping returns a command rather than an error.
func PingFunc(name string, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", name)
		}
		return nil
	}
}
