// Package metrics records and summarizes QoS 1/2 publish acknowledgement
// latency samples for the stats command.
package metrics

import (
	"sync"
	"time"
)

// Recorder accumulates latency samples from concurrent goroutines.
type Recorder struct {
	mu      sync.Mutex
	samples []time.Duration
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record adds one latency sample.
func (r *Recorder) Record(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, d)
}

// Snapshot returns a copy of every sample recorded so far.
func (r *Recorder) Snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.samples))
	copy(out, r.samples)
	return out
}

// Len returns the number of samples recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
