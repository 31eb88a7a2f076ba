package resilience

import "sync"

// Window is a count-based sliding window over the last N call outcomes.
type Window struct {
	mu       sync.Mutex
	outcomes []bool // true = failure
	next     int
	filled   int
	failures int
	epoch    uint64
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{outcomes: make([]bool, size)}
}

// Record appends an outcome, evicting the oldest once the window is full.
func (w *Window) Record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(success)
}

// Epoch changes on every Reset.
func (w *Window) Epoch() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

// RecordIn records the outcome only if the window has not been reset since
// epoch was read. It reports whether the outcome was kept.
func (w *Window) RecordIn(epoch uint64, success bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return false
	}
	w.record(success)
	return true
}

func (w *Window) record(success bool) {
	if w.filled == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.filled++
	}
	failed := !success
	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *Window) Full() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled == len(w.outcomes)
}

// FailureRate returns the failure percentage (0-100) of recorded outcomes.
func (w *Window) FailureRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filled == 0 {
		return 0
	}
	return float64(w.failures) * 100 / float64(w.filled)
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.outcomes {
		w.outcomes[i] = false
	}
	w.next, w.filled, w.failures = 0, 0, 0
	w.epoch++
}
