// Package coalesce deduplicates concurrent in-flight computations so that at
// most one upstream call runs per key.
//
// The first caller for a key becomes the primary: it runs the compute
// delegate with no lock held and fans the result out to every waiter that
// attached while it ran. Waiters block on the shared completion channel,
// bounded by a per-waiter timeout that never affects the primary or other
// waiters. Errors are fanned out the same way and are not cached: the
// pending entry is removed before the fan-out, so the next identical request
// retries fresh.
package coalesce

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultWaitTimeout bounds how long an attached waiter blocks on the
// primary computation.
const DefaultWaitTimeout = 30 * time.Second

// ErrWaitTimeout is returned to a waiter whose wait exceeded the timeout.
// The primary computation keeps running.
var ErrWaitTimeout = errors.New("coalesce: timed out waiting for in-flight computation")

// ErrDrained is returned to waiters failed by Drain.
var ErrDrained = errors.New("coalesce: coalescer drained")

// Func is the expensive upstream computation being coalesced.
type Func func(ctx context.Context) (string, error)

// call is one in-flight computation. done is closed exactly once, after val
// and err are set and the call is removed from the pending table. resolved
// is guarded by the coalescer mutex and arbitrates between the primary and
// Drain, whichever resolves the call first.
type call struct {
	done     chan struct{}
	val      string
	err      error
	waiters  int
	resolved bool
}

// Coalescer tracks pending computations by key. The zero value is not
// usable; construct with New.
type Coalescer struct {
	timeout time.Duration

	mu    sync.Mutex
	calls map[string]*call
}

// New creates a Coalescer. A non-positive timeout falls back to
// DefaultWaitTimeout.
func New(timeout time.Duration) *Coalescer {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return &Coalescer{
		timeout: timeout,
		calls:   make(map[string]*call),
	}
}

// Key builds a coalescing key from a query and its domain tag. Queries that
// differ only in case or surrounding whitespace share a key.
func Key(query, domain string) string {
	if domain == "" {
		domain = "generic"
	}
	normalized := strings.ToLower(strings.TrimSpace(query)) + "|" + domain
	return strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}

// Do executes fn for key, coalescing with any computation already in flight.
// It returns the shared value or error, plus primary=true for the caller
// that actually ran fn. For N concurrent calls with the same key, fn runs
// exactly once and all N callers observe the same outcome.
func (c *Coalescer) Do(ctx context.Context, key string, fn Func) (val string, primary bool, err error) {
	c.mu.Lock()
	if existing, ok := c.calls[key]; ok {
		existing.waiters++
		c.mu.Unlock()
		v, err := c.wait(ctx, key, existing)
		return v, false, err
	}

	cl := &call{done: make(chan struct{})}
	c.calls[key] = cl
	c.mu.Unlock()

	// Run the delegate with no lock held: a slow upstream call must not
	// block unrelated keys.
	v, e := fn(ctx)

	c.mu.Lock()
	if !cl.resolved {
		cl.resolved = true
		cl.val, cl.err = v, e
		delete(c.calls, key)
		c.mu.Unlock()
		close(cl.done)
	} else {
		// Drain got there first; waiters already failed.
		c.mu.Unlock()
	}

	return v, true, e
}

// wait blocks until the primary resolves cl, the waiter's timeout fires, or
// ctx is cancelled. Timeout and cancellation are local to this waiter.
func (c *Coalescer) wait(ctx context.Context, key string, cl *call) (string, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-cl.done:
		c.detach(key, cl)
		return cl.val, cl.err
	case <-timer.C:
		c.detach(key, cl)
		return "", ErrWaitTimeout
	case <-ctx.Done():
		c.detach(key, cl)
		return "", ctx.Err()
	}
}

// detach decrements cl's waiter count if it is still the pending call for
// key.
func (c *Coalescer) detach(key string, cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.calls[key]; ok && current == cl {
		cl.waiters--
	}
}

// Pending returns the number of in-flight computations.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Waiters returns the number of callers attached to in-flight computations,
// not counting primaries.
func (c *Coalescer) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cl := range c.calls {
		n += cl.waiters
	}
	return n
}

// Drain fails all attached waiters with ErrDrained and forgets the pending
// table. Primaries already running their delegate finish normally and
// receive their own result.
func (c *Coalescer) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, cl := range c.calls {
		if !cl.resolved {
			cl.resolved = true
			cl.err = ErrDrained
			close(cl.done)
		}
		delete(c.calls, key)
	}
}
