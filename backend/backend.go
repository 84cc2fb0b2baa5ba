// Package backend defines the Optimizer Backend Adapter Layer: one
// interface behind two concrete backends (eos, evopt).
package backend

import (
	"sync"
	"time"

	"github.com/devskill-org/ems/ctrl"
)

// Backend is the one operation every optimizer adapter exposes.
type Backend interface {
	Optimize(req ctrl.OptimizeRequest, timeout time.Duration) (resp *ctrl.OptimizeResponse, avgRuntime time.Duration)
}

// RuntimeTracker maintains the trailing average of the last five successful
// backend calls. Grounded on optimization_backend_eos.py /
// optimization_backend_evopt.py: a fixed 5-slot ring, seeded to all-zero;
// on the first success, if every slot is still zero, every slot is filled
// with that one measurement (not just one slot) so the moving average does
// not start biased toward zero. Failures never touch the buffer or index.
type RuntimeTracker struct {
	mu      sync.Mutex
	samples [5]time.Duration
	next    int
}

// Record stores a successful runtime measurement and returns the new
// average.
func (r *RuntimeTracker) Record(d time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	allZero := true
	for _, s := range r.samples {
		if s != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		for i := range r.samples {
			r.samples[i] = d
		}
	} else {
		r.samples[r.next] = d
	}
	r.next = (r.next + 1) % len(r.samples)

	var total time.Duration
	for _, s := range r.samples {
		total += s
	}
	return total / time.Duration(len(r.samples))
}

// Average returns the current average without recording a new sample.
func (r *RuntimeTracker) Average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total time.Duration
	for _, s := range r.samples {
		total += s
	}
	return total / time.Duration(len(r.samples))
}
