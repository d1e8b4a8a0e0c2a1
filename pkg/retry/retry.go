// Package retry waits out transient failures while the service starts, mostly
// a database that is still booting or refusing connections.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Policy is an exponential backoff schedule.
type Policy struct {
	Attempts int           // total calls, including the first
	Base     time.Duration // wait after the first failure
	Cap      time.Duration // longest single wait
	Factor   float64
	Jitter   float64 // fraction of each wait randomised in both directions
}

// Startup is the policy used while waiting for dependencies at boot: six calls
// spread over roughly fifteen seconds.
func Startup() Policy {
	return Policy{Attempts: 6, Base: 500 * time.Millisecond, Cap: 10 * time.Second, Factor: 2, Jitter: 0.1}
}

// Wait returns the pause before the call numbered attempt+1.
func (p Policy) Wait(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if p.Cap > 0 && d >= float64(p.Cap) {
			d = float64(p.Cap)
			break
		}
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts, or ctx ends. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = fn(ctx); err == nil || !Transient(err) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}

		timer := time.NewTimer(p.Wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// postgres SQLSTATEs worth waiting out.
var transientSQLStates = map[string]bool{
	"57P03": true, // cannot_connect_now
	"53300": true, // too_many_connections
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
}

var transientFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"timed out",
	"timeout",
	"the database system is starting up",
	"503",
	"service unavailable",
}

// Transient reports whether err is worth another attempt. Errors that carry
// their own IsRetryable verdict are trusted; postgres and network errors are
// classified by type; anything else falls back to its message.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var verdict interface{ IsRetryable() bool }
	if errors.As(err, &verdict) {
		return verdict.IsRetryable()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLStates[pgErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
