package system

import (
	"sync"
	"time"
)

type deltaSample struct {
	value uint64
	at    time.Time
}

// deltaEngine turns monotonic counters into rates between consecutive
// observations of the same key.
type deltaEngine struct {
	mu      sync.Mutex
	samples map[string]deltaSample
}

func newDeltaEngine() *deltaEngine {
	return &deltaEngine{samples: make(map[string]deltaSample)}
}

// ObserveCounter stores the current counter and returns the delta and
// elapsed seconds since the previous sample of key.
func (e *deltaEngine) ObserveCounter(key string, now time.Time, cur uint64) (delta uint64, seconds float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, exists := e.samples[key]
	e.samples[key] = deltaSample{value: cur, at: now}
	if !exists {
		return 0, 0, false
	}

	seconds = now.Sub(prev.at).Seconds()
	if seconds <= 0 {
		return 0, 0, false
	}
	if cur < prev.value {
		// counter reset, interface re-created
		return 0, seconds, false
	}
	return cur - prev.value, seconds, true
}

// Rate is ObserveCounter expressed as units per second; 0 when unknown.
func (e *deltaEngine) Rate(key string, now time.Time, cur uint64) float64 {
	delta, seconds, ok := e.ObserveCounter(key, now, cur)
	if !ok {
		return 0
	}
	return round2(float64(delta) / seconds)
}

// Forget drops keys not present in keep.
func (e *deltaEngine) Forget(keep map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.samples {
		if _, ok := keep[k]; !ok {
			delete(e.samples, k)
		}
	}
}
