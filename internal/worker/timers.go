package worker

import (
	"sync"
	"time"
)

const timerHistory = 16

// timerRing keeps the most recent processing durations.
type timerRing struct {
	mu    sync.Mutex
	buf   [timerHistory]time.Duration
	next  int
	count int
}

func (r *timerRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = d
	r.next = (r.next + 1) % timerHistory
	if r.count < timerHistory {
		r.count++
	}
}

// values returns the recorded durations, oldest first.
func (r *timerRing) values() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, 0, r.count)
	start := (r.next - r.count + timerHistory) % timerHistory
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%timerHistory])
	}
	return out
}

func (r *timerRing) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next, r.count = 0, 0
}
