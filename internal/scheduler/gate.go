package scheduler

import "sync"

// gate decides whether a ready generator may be fired: never while paused,
// and only against a step token in stepping mode.
type gate struct {
	mu       sync.Mutex
	paused   bool
	stepping bool
	tokens   int
}

func (g *gate) acquire() (ok, stepped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false, false
	}
	if !g.stepping {
		return true, false
	}
	if g.tokens == 0 {
		return false, false
	}
	g.tokens--
	return true, true
}

// release returns an unused step token.
func (g *gate) release(stepped bool) {
	if !stepped {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stepping {
		g.tokens++
	}
}

func (g *gate) setPaused(paused bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	changed := g.paused != paused
	g.paused = paused
	return changed
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *gate) setStepping(stepping bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stepping = stepping
	g.tokens = 0
}

func (g *gate) isStepping() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stepping
}

func (g *gate) addToken() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.stepping {
		return false
	}
	g.tokens++
	return true
}
