package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/observer"
)

const (
	// DefaultGroupID is the shared group every generator joins by default.
	DefaultGroupID = 0
	// PrivateThreadID requests a dedicated group for a single generator.
	PrivateThreadID = -1

	defaultGroupName = "default"
)

// Option configures a ThreadPool.
type Option func(*options)

type options struct {
	privateThreads bool
	maxWorkers     int
	suppress       bool
}

// WithPrivateThreads gives every generator added through Add its own group.
func WithPrivateThreads(enabled bool) Option {
	return func(o *options) { o.privateThreads = enabled }
}

// WithMaxWorkers caps the number of group loops. Zero means unbounded.
func WithMaxWorkers(n int) Option {
	return func(o *options) { o.maxWorkers = n }
}

// WithSuppressExceptions sets whether execution errors keep loops running.
func WithSuppressExceptions(suppress bool) Option {
	return func(o *options) { o.suppress = suppress }
}

// ThreadPool owns the thread groups and the goroutines running their loops.
type ThreadPool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	opts    options
	workers *ants.Pool

	gate     gate
	suppress atomic.Bool

	// moveMu serializes membership changes so that a generator is never
	// attached to two groups.
	moveMu  sync.Mutex
	mu      sync.Mutex
	groups  map[int]*ThreadGroup
	owner   map[TaskGenerator]*ThreadGroup
	nextID  int
	stopped bool

	// StepDone fires after a dispatch released by Step.
	StepDone observer.Signal[nodeid.UUID]
	// GroupFailed fires when an unsuppressed error halts a group.
	GroupFailed observer.Signal[GroupFailure]
}

// NewThreadPool creates a pool with a running default group.
func NewThreadPool(ctx context.Context, opts ...Option) (*ThreadPool, error) {
	o := options{suppress: true}
	for _, opt := range opts {
		opt(&o)
	}

	capacity := 1
	if o.maxWorkers > 0 {
		capacity = o.maxWorkers
	}
	workers, err := ants.NewPool(capacity,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r any) {
			// Only invariant violations escape a group loop.
			panic(r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	loopCtx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, logger))
	p := &ThreadPool{
		ctx:     loopCtx,
		cancel:  cancel,
		logger:  logger,
		opts:    o,
		workers: workers,
		groups:  make(map[int]*ThreadGroup),
		owner:   make(map[TaskGenerator]*ThreadGroup),
		nextID:  1,
	}
	p.suppress.Store(o.suppress)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.createGroupLocked(DefaultGroupID, defaultGroupName, false); err != nil {
		workers.Release()
		cancel()
		return nil, err
	}
	return p, nil
}

func (p *ThreadPool) submit(task func()) error {
	if err := p.workers.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrPoolExhausted
		}
		return err
	}
	return nil
}

func (p *ThreadPool) createGroupLocked(id int, name string, private bool) (*ThreadGroup, error) {
	if p.stopped {
		return nil, ErrStopped
	}
	if _, exists := p.groups[id]; exists {
		return nil, fmt.Errorf("%w: %d", ErrGroupExists, id)
	}
	if p.opts.maxWorkers > 0 && len(p.groups) >= p.opts.maxWorkers {
		return nil, fmt.Errorf("%w: limit is %d groups", ErrPoolExhausted, p.opts.maxWorkers)
	}
	if p.opts.maxWorkers == 0 {
		p.workers.Tune(len(p.groups) + 1)
	}

	g := newThreadGroup(p, id, name, private)
	if err := g.start(p.ctx, p.submit); err != nil {
		return nil, fmt.Errorf("failed to start thread group %d: %w", id, err)
	}
	p.groups[id] = g
	if id >= p.nextID {
		p.nextID = id + 1
	}
	p.logger.Debug("Thread group created.", "group", id, "groupName", name)
	return g, nil
}

// CreateGroup creates a group with a fresh id.
func (p *ThreadPool) CreateGroup(name string) (*ThreadGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createGroupLocked(p.nextID, name, false)
}

// CreateGroupWithID creates a group under a caller-chosen id, e.g. when
// restoring a saved graph or redoing a command.
func (p *ThreadPool) CreateGroupWithID(id int, name string) (*ThreadGroup, error) {
	if id <= DefaultGroupID {
		return nil, fmt.Errorf("%w: %d", ErrReservedGroup, id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createGroupLocked(id, name, false)
}

// RemoveGroup stops a group. Its generators move to the default group.
func (p *ThreadPool) RemoveGroup(id int) error {
	if id == DefaultGroupID {
		return fmt.Errorf("%w: %d", ErrReservedGroup, id)
	}
	p.moveMu.Lock()
	defer p.moveMu.Unlock()

	p.mu.Lock()
	g, ok := p.groups[id]
	def := p.groups[DefaultGroupID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	delete(p.groups, id)
	p.mu.Unlock()

	for _, gen := range g.Generators() {
		p.moveLocked(gen, def)
	}
	g.shutdown()
	p.logger.Debug("Thread group removed.", "group", id)
	return nil
}

// Group looks up a group by id.
func (p *ThreadPool) Group(id int) (*ThreadGroup, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[id]
	return g, ok
}

// Groups returns all groups ordered by id.
func (p *ThreadPool) Groups() []*ThreadGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ThreadGroup, 0, len(p.groups))
	for _, id := range slices.Sorted(maps.Keys(p.groups)) {
		out = append(out, p.groups[id])
	}
	return out
}

// Add schedules gen on the default group, or on a private group when the
// pool runs with private threads.
func (p *ThreadPool) Add(gen TaskGenerator) error {
	if p.opts.privateThreads {
		_, err := p.CreateNewGroupFor(gen, gen.UUID().String())
		return err
	}
	return p.AddToGroup(gen, DefaultGroupID)
}

// Remove unschedules gen. A private group left empty is removed as well.
func (p *ThreadPool) Remove(gen TaskGenerator) error {
	p.moveMu.Lock()
	defer p.moveMu.Unlock()

	p.mu.Lock()
	g, ok := p.owner[gen]
	delete(p.owner, gen)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotScheduled, gen.UUID())
	}
	g.detach(gen)
	p.dropIfEmptyPrivate(g)
	return nil
}

// CreateNewGroupFor moves gen into a fresh private group and returns its id.
func (p *ThreadPool) CreateNewGroupFor(gen TaskGenerator, name string) (int, error) {
	p.moveMu.Lock()
	defer p.moveMu.Unlock()

	p.mu.Lock()
	g, err := p.createGroupLocked(p.nextID, name, true)
	p.mu.Unlock()
	if err != nil {
		return 0, err
	}
	p.moveLocked(gen, g)
	return g.id, nil
}

// AddToGroup moves gen into group id.
func (p *ThreadPool) AddToGroup(gen TaskGenerator, id int) error {
	p.moveMu.Lock()
	defer p.moveMu.Unlock()

	p.mu.Lock()
	g, ok := p.groups[id]
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	p.moveLocked(gen, g)
	return nil
}

// moveLocked detaches gen from its owner and attaches it to g. The caller
// holds moveMu.
func (p *ThreadPool) moveLocked(gen TaskGenerator, g *ThreadGroup) {
	p.mu.Lock()
	old := p.owner[gen]
	p.owner[gen] = g
	p.mu.Unlock()

	if old == g {
		return
	}
	if old != nil {
		old.detach(gen)
	}
	g.attach(gen)
	if old != nil {
		p.dropIfEmptyPrivate(old)
	}
}

func (p *ThreadPool) dropIfEmptyPrivate(g *ThreadGroup) {
	if !g.private || g.Len() > 0 {
		return
	}
	p.mu.Lock()
	if p.groups[g.id] == g {
		delete(p.groups, g.id)
	}
	p.mu.Unlock()
	g.shutdown()
	p.logger.Debug("Private thread group released.", "group", g.id)
}

// GetGroupFor returns the group owning gen.
func (p *ThreadPool) GetGroupFor(gen TaskGenerator) (*ThreadGroup, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.owner[gen]
	return g, ok
}

func (p *ThreadPool) wakeAll() {
	for _, g := range p.Groups() {
		g.Wake()
	}
}

// SetPause stops (or resumes) firing new work. Runs in progress complete.
func (p *ThreadPool) SetPause(paused bool) {
	if !p.gate.setPaused(paused) {
		return
	}
	p.logger.Info("Thread pool pause changed.", "paused", paused)
	if !paused {
		p.wakeAll()
	}
}

func (p *ThreadPool) IsPaused() bool { return p.gate.isPaused() }

// SetSteppingMode switches to (or from) dispatching only on Step.
func (p *ThreadPool) SetSteppingMode(enabled bool) {
	p.gate.setStepping(enabled)
	if !enabled {
		p.wakeAll()
	}
}

func (p *ThreadPool) IsStepping() bool { return p.gate.isStepping() }

// Step releases exactly one dispatch across all groups. It reports false
// outside stepping mode.
func (p *ThreadPool) Step() bool {
	if !p.gate.addToken() {
		return false
	}
	p.wakeAll()
	return true
}

// SetSuppressExceptions sets whether execution errors keep loops running.
func (p *ThreadPool) SetSuppressExceptions(suppress bool) { p.suppress.Store(suppress) }

func (p *ThreadPool) SuppressExceptions() bool { return p.suppress.Load() }

func (p *ThreadPool) generators() []TaskGenerator {
	var out []TaskGenerator
	for _, g := range p.Groups() {
		out = append(out, g.Generators()...)
	}
	return out
}

// Clear abandons all pending and in-flight work and restarts halted groups.
// Membership is left untouched.
func (p *ThreadPool) Clear() {
	for _, gen := range p.generators() {
		gen.Clear()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	for _, g := range p.groups {
		if g.Failure() == nil {
			continue
		}
		if err := g.start(p.ctx, p.submit); err != nil {
			p.logger.Error("Failed to restart thread group.", "group", g.id, "error", err)
		}
	}
}

// Reset returns every generator to its initial runtime state.
func (p *ThreadPool) Reset() {
	for _, gen := range p.generators() {
		gen.Reset()
	}
	p.wakeAll()
}

// Stop terminates every loop, waits for them and releases the goroutines.
func (p *ThreadPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	groups := slices.Collect(maps.Values(p.groups))
	p.mu.Unlock()

	for _, g := range groups {
		g.shutdown()
	}
	p.cancel()
	p.workers.Release()
	p.logger.Debug("Thread pool stopped.")
}
