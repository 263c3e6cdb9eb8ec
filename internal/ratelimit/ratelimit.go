// Package ratelimit spaces out calls to the upstream APIs and tracks
// their monthly call budgets. Both upstreams are free-tier services:
// the transit API allows 45 requests/minute and a fixed number of
// calls per rolling month, the catalog just asks to be treated gently.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// QuotaError is returned by Acquire once a service's monthly budget is
// spent. Callers must treat it as terminal for that service: waiting
// will not help within the run.
type QuotaError struct {
	Service string
	Quota   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("ratelimit: monthly quota of %d calls exhausted for %s", e.Quota, e.Service)
}

// IsQuotaExceeded reports whether err is (or wraps) a quota exhaustion.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// ServiceLimit configures one upstream service.
type ServiceLimit struct {
	MinInterval  time.Duration // minimum spacing between two grants
	MonthlyQuota int           // 0 = unlimited
}

// window is one month of call accounting, anchored at the first call
// after the previous window expired. An anchored window can admit up
// to 2x the quota across one true rolling 30-day span at the boundary;
// exact accounting would need a timestamp ring of quota size, which is
// not worth it for a per-process limiter.
const windowLength = 30 * 24 * time.Hour

type serviceState struct {
	limit       ServiceLimit
	nextAllowed time.Time // earliest instant the next grant may happen
	windowStart time.Time
	calls       int
}

// Limiter serializes acquire calls per service across all workers.
// It is the single shared object governing call timing; no worker
// talks to an upstream without going through it.
type Limiter struct {
	mu       sync.Mutex
	services map[string]*serviceState
	now      func() time.Time // swappable for tests
	sleep    func(context.Context, time.Duration) error
}

// New builds a Limiter for the given services.
func New(limits map[string]ServiceLimit) *Limiter {
	l := &Limiter{
		services: make(map[string]*serviceState, len(limits)),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for name, lim := range limits {
		l.services[name] = &serviceState{limit: lim}
	}
	return l
}

// Acquire blocks until it is safe to issue the next call for service,
// then returns. Grants for one service are reserved under the mutex,
// so two concurrent acquirers can never complete closer together than
// MinInterval. Once the monthly quota is spent it fails fast with a
// *QuotaError instead of blocking.
func (l *Limiter) Acquire(ctx context.Context, service string) error {
	l.mu.Lock()
	st, ok := l.services[service]
	if !ok {
		st = &serviceState{}
		l.services[service] = st
	}

	now := l.now()
	if st.limit.MonthlyQuota > 0 {
		if st.windowStart.IsZero() || now.Sub(st.windowStart) >= windowLength {
			st.windowStart = now
			st.calls = 0
		}
		if st.calls >= st.limit.MonthlyQuota {
			l.mu.Unlock()
			return &QuotaError{Service: service, Quota: st.limit.MonthlyQuota}
		}
	}

	// Reserve a slot: the grant happens at st.nextAllowed even if we
	// still have to sleep our way there.
	grantAt := now
	if grantAt.Before(st.nextAllowed) {
		grantAt = st.nextAllowed
	}
	st.nextAllowed = grantAt.Add(st.limit.MinInterval)
	st.calls++
	l.mu.Unlock()

	if wait := grantAt.Sub(now); wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			// The grant was never used: refund the quota slot. The
			// spacing reservation stands, later grants already built
			// on nextAllowed.
			l.mu.Lock()
			st.calls--
			l.mu.Unlock()
			return err
		}
	}
	return nil
}

// Calls returns how many calls were granted for service in the
// current window. For progress logging.
func (l *Limiter) Calls(service string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.services[service]; ok {
		return st.calls
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
