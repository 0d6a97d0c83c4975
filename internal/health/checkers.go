package health

import (
	"context"
	"errors"
)

// Pinger is the subset of the conversation memory store used by readiness
// checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker returns a [Checker] that probes p. It is used to gate
// readiness on the Postgres memory store.
func PingChecker(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// ErrNotConfigured is reported by [RequiredChecker] for a dependency that was
// not configured at startup.
var ErrNotConfigured = errors.New("not configured")

// RequiredChecker returns a [Checker] that passes when configured is true and
// fails with [ErrNotConfigured] otherwise. It marks provider modes the
// deployment considers mandatory.
func RequiredChecker(name string, configured bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !configured {
				return ErrNotConfigured
			}
			return nil
		},
	}
}
