package sources

import (
	"sync"
	"time"
)

const (
	defaultBackoffFactor = 2
	// maxBackoffExponent bounds the failure delay so repeated errors cannot
	// overflow the duration arithmetic.
	maxBackoffExponent = 10
)

// Throttle is the adapter-local interval gate with exponential backoff on
// failure. It matters only when an adapter is invoked standalone; under the
// aggregator the scheduler's metadata-based due-check is authoritative and
// Reset is called before every driven fetch.
type Throttle struct {
	mu            sync.Mutex
	interval      time.Duration
	lastFetch     time.Time
	errorCount    int
	backoffFactor int
}

// SetInterval sets the base interval between fetches.
func (t *Throttle) SetInterval(d time.Duration) {
	t.mu.Lock()
	t.interval = d
	t.mu.Unlock()
}

// Due reports whether a fetch is allowed at now. A throttle that has never
// fetched is always due.
func (t *Throttle) Due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastFetch.IsZero() {
		return true
	}
	return now.Sub(t.lastFetch) >= t.interval
}

// Success marks a completed fetch and resets the error streak.
func (t *Throttle) Success(now time.Time) {
	t.mu.Lock()
	t.lastFetch = now
	t.errorCount = 0
	t.mu.Unlock()
}

// Failure records a failed fetch and advances the last-fetch marker so the
// next Due check effectively waits interval * factor^errors instead of the
// base interval.
func (t *Throttle) Failure(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errorCount++
	factor := t.backoffFactor
	if factor <= 1 {
		factor = defaultBackoffFactor
	}
	exp := t.errorCount
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}

	delay := t.interval
	for i := 0; i < exp; i++ {
		delay *= time.Duration(factor)
	}
	t.lastFetch = now.Add(delay - t.interval)
}

// Reset clears the gate so the next Due check passes immediately.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.lastFetch = time.Time{}
	t.mu.Unlock()
}

// ErrorCount returns the current failure streak.
func (t *Throttle) ErrorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorCount
}
