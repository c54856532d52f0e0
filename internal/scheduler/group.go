package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/petermattis/goid"
	"github.com/vk/flowgridgo/internal/connector"
)

// ThreadGroup is a named set of generators sharing one dispatch loop.
type ThreadGroup struct {
	id      int
	pool    *ThreadPool
	private bool
	logger  *slog.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	name       string
	generators []TaskGenerator
	current    TaskGenerator
	loopGID    int64
	failure    error

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newThreadGroup(pool *ThreadPool, id int, name string, private bool) *ThreadGroup {
	g := &ThreadGroup{
		id:      id,
		pool:    pool,
		private: private,
		name:    name,
		logger:  pool.logger.With("group", id, "groupName", name),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	close(g.done)
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *ThreadGroup) ID() int { return g.id }

// Private reports whether the group was created to isolate a single node.
func (g *ThreadGroup) Private() bool { return g.private }

func (g *ThreadGroup) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.name
}

func (g *ThreadGroup) SetName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
}

// Generators returns the members in scan order.
func (g *ThreadGroup) Generators() []TaskGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.generators)
}

func (g *ThreadGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.generators)
}

// Failure returns the error that halted the loop, if any.
func (g *ThreadGroup) Failure() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failure
}

// Wake makes the loop rescan. It never blocks.
func (g *ThreadGroup) Wake() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *ThreadGroup) attach(gen TaskGenerator) {
	g.mu.Lock()
	g.generators = append(g.generators, gen)
	g.mu.Unlock()
	gen.SetWaker(g.Wake)
	g.Wake()
}

// detach removes gen, waiting for a dispatch of it to return unless called
// from the group's own loop.
func (g *ThreadGroup) detach(gen TaskGenerator) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := slices.Index(g.generators, gen)
	if idx < 0 {
		return false
	}
	g.generators = slices.Delete(g.generators, idx, idx+1)
	if goid.Get() != g.loopGID {
		for g.current == gen {
			g.cond.Wait()
		}
	}
	gen.SetWaker(nil)
	return true
}

// begin marks gen as being dispatched if it still belongs to the group.
func (g *ThreadGroup) begin(gen TaskGenerator) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.generators, gen) {
		return false
	}
	g.current = gen
	return true
}

func (g *ThreadGroup) end() {
	g.mu.Lock()
	g.current = nil
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *ThreadGroup) stopping() bool {
	select {
	case <-g.stop:
		return true
	default:
		return false
	}
}

// start runs the loop through submit. A halted group may be started again.
func (g *ThreadGroup) start(ctx context.Context, submit func(func()) error) error {
	g.mu.Lock()
	select {
	case <-g.done:
	default:
		g.mu.Unlock()
		return nil
	}
	g.failure = nil
	done := make(chan struct{})
	g.done = done
	g.mu.Unlock()

	if err := submit(func() { g.loop(ctx, done) }); err != nil {
		close(done)
		return err
	}
	return nil
}

// shutdown stops the loop and waits for it to exit, unless called from the
// loop itself.
func (g *ThreadGroup) shutdown() {
	g.mu.Lock()
	select {
	case <-g.stop:
	default:
		close(g.stop)
	}
	done, own := g.done, goid.Get() == g.loopGID
	g.mu.Unlock()

	if !own {
		<-done
	}
}

func (g *ThreadGroup) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	g.mu.Lock()
	g.loopGID = goid.Get()
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.loopGID = 0
		g.mu.Unlock()
	}()

	g.logger.Debug("Thread group started.")
	defer g.logger.Debug("Thread group stopped.")

	for !g.stopping() {
		scanStart := time.Now()
		worked, err := g.scan(ctx)
		if err != nil {
			g.halt(err)
			return
		}
		if !worked {
			g.sleep(scanStart)
		}
	}
}

func (g *ThreadGroup) scan(ctx context.Context) (worked bool, err error) {
	for _, gen := range g.Generators() {
		if g.stopping() {
			return worked, nil
		}
		if !gen.CanProduce() {
			continue
		}
		ok, stepped := g.pool.gate.acquire()
		if !ok {
			continue
		}
		if !g.begin(gen) {
			g.pool.gate.release(stepped)
			continue
		}
		if !gen.Fire() {
			g.end()
			g.pool.gate.release(stepped)
			continue
		}
		err := g.execute(ctx, gen)
		g.end()
		worked = true
		if stepped {
			g.pool.StepDone.Emit(gen.UUID())
		}
		if err == nil {
			continue
		}
		if !g.pool.SuppressExceptions() {
			return worked, err
		}
		g.logger.Warn("Node execution failed.", "node", gen.UUID().String(), "error", err)
	}
	return worked, nil
}

func (g *ThreadGroup) execute(ctx context.Context, gen TaskGenerator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if connector.IsInvariantViolation(r) {
				panic(r)
			}
			err = fmt.Errorf("generator %s panicked: %v", gen.UUID(), r)
		}
	}()
	return gen.Execute(ctx)
}

func (g *ThreadGroup) halt(err error) {
	g.mu.Lock()
	g.failure = err
	g.mu.Unlock()
	g.logger.Error("Thread group halted.", "error", err)
	g.pool.GroupFailed.Emit(GroupFailure{GroupID: g.id, Name: g.Name(), Err: err})
}

// sleep blocks until woken, stopped, or the earliest tick deadline after
// scanStart. Earlier deadlines were already evaluated by the scan.
func (g *ThreadGroup) sleep(scanStart time.Time) {
	var timeout <-chan time.Time
	var next time.Time
	for _, gen := range g.Generators() {
		d := gen.NextDeadline()
		if d.IsZero() || !d.After(scanStart) {
			continue
		}
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	if !next.IsZero() {
		t := time.NewTimer(time.Until(next))
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-g.wake:
	case <-g.stop:
	case <-timeout:
	}
}

// GroupFailure reports a group halted by an unsuppressed error.
type GroupFailure struct {
	GroupID int
	Name    string
	Err     error
}
