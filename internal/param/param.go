// Package param implements node parameters and their change-notification
// contract. A parameter holds a typed cty value; Set notifies subscribers
// only when the value actually changes.
package param

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/flowgridgo/internal/observer"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Parameter is a named, typed value owned by one node.
type Parameter struct {
	name        string
	description string
	typ         cty.Type

	mu          sync.RWMutex
	value       cty.Value
	enabled     bool
	interactive bool
	destroyed   bool

	Changed            observer.Signal[*Parameter]
	EnabledChanged     observer.Signal[*Parameter]
	InteractiveChanged observer.Signal[*Parameter]
	Destroyed          observer.Signal[*Parameter]
}

// Option configures a Parameter at construction.
type Option func(*Parameter)

// WithDescription sets the human-readable description.
func WithDescription(d string) Option {
	return func(p *Parameter) { p.description = d }
}

// WithType fixes the declared type instead of inferring it from the default.
func WithType(t cty.Type) Option {
	return func(p *Parameter) { p.typ = t }
}

// New creates an enabled parameter whose type is the type of def.
func New(name string, def cty.Value, opts ...Option) *Parameter {
	p := &Parameter{
		name:    name,
		typ:     def.Type(),
		value:   def,
		enabled: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parameter) Name() string        { return p.name }
func (p *Parameter) Description() string { return p.description }
func (p *Parameter) Type() cty.Type      { return p.typ }

// Value returns the current value.
func (p *Parameter) Value() cty.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Set converts v to the declared type and stores it. Changed fires only if
// the stored value differs from the previous one.
func (p *Parameter) Set(v cty.Value) error {
	converted, err := convert.Convert(v, p.typ)
	if err != nil {
		return fmt.Errorf("parameter %q: %w", p.name, err)
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return fmt.Errorf("parameter %q: destroyed", p.name)
	}
	if p.value.RawEquals(converted) {
		p.mu.Unlock()
		return nil
	}
	p.value = converted
	p.mu.Unlock()

	p.Changed.Emit(p)
	return nil
}

// Enabled reports whether the parameter is currently editable.
func (p *Parameter) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles the enabled flag.
func (p *Parameter) SetEnabled(enabled bool) {
	p.mu.Lock()
	if p.enabled == enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = enabled
	p.mu.Unlock()
	p.EnabledChanged.Emit(p)
}

// Interactive reports whether changes should be applied while dragging.
func (p *Parameter) Interactive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interactive
}

// SetInteractive toggles the interactive flag.
func (p *Parameter) SetInteractive(interactive bool) {
	p.mu.Lock()
	if p.interactive == interactive {
		p.mu.Unlock()
		return
	}
	p.interactive = interactive
	p.mu.Unlock()
	p.InteractiveChanged.Emit(p)
}

// Destroy fires Destroyed once; later Set calls fail.
func (p *Parameter) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()
	p.Destroyed.Emit(p)
}

// Set is an ordered collection of parameters keyed by name.
type Set struct {
	mu     sync.RWMutex
	order  []*Parameter
	byName map[string]*Parameter
}

// NewSet creates an empty collection.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Parameter)}
}

// Add registers p. Names must be unique.
func (s *Set) Add(p *Parameter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[p.name]; exists {
		return fmt.Errorf("parameter %q already declared", p.name)
	}
	s.byName[p.name] = p
	s.order = append(s.order, p)
	return nil
}

// Get looks up a parameter by name.
func (s *Set) Get(name string) (*Parameter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[name]
	return p, ok
}

// All returns the parameters in declaration order.
func (s *Set) All() []*Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Parameter, len(s.order))
	copy(out, s.order)
	return out
}

// Values snapshots every value.
func (s *Set) Values() map[string]cty.Value {
	out := make(map[string]cty.Value)
	for _, p := range s.All() {
		out[p.Name()] = p.Value()
	}
	return out
}

// Apply sets each named value. Unknown names and conversion failures are
// collected and reported after the remaining values were applied.
func (s *Set) Apply(values map[string]cty.Value) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		p, ok := s.Get(name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown parameter %q", name))
			continue
		}
		if err := p.Set(values[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DestroyAll destroys every parameter.
func (s *Set) DestroyAll() {
	for _, p := range s.All() {
		p.Destroy()
	}
}
