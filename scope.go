package zenify

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sdegenaar/zenify/internal/graph"
)

// Use-count sentinels. Non-negative values are caller-managed reference
// counts.
const (
	usePermanent = -1 // binding survives Delete unless Force is given
	useFactory   = -2 // always-new factory, never cached
)

// Scope is a node in the hierarchical instance-lifetime tree. It owns
// typed and tagged bindings, pending factories, use counts, disposers,
// and child scopes. Lookups that miss locally fall back to the parent
// chain; a child's own binding always shadows its parent's.
//
// A scope transitions exactly once from active to disposed. After Close,
// mutating calls return ErrScopeDisposed and lookups report absent.
type Scope struct {
	id      string
	name    string
	parent  *Scope
	manager *ScopeManager
	logger  *zap.Logger

	mu         sync.RWMutex
	instances  map[reflect.Type]any
	tagged     map[string]taggedSlot
	tagsByType map[reflect.Type]map[string]struct{}
	factories  map[Key]*factoryEntry
	useCounts  map[Key]int
	deps       *graph.Graph[Key]
	disposers  []func()
	children   []*Scope
	loaded     []Module
	loadedSet  map[string]struct{}

	disposed int32
}

type factoryEntry struct {
	fn        func() any
	alwaysNew bool
	permanent bool
}

// taggedSlot pairs a tagged value with the key it was registered under, so
// deletes and use counts address the registration type rather than the
// value's dynamic type.
type taggedSlot struct {
	key   Key
	value any
}

// NewScope creates a scope. WithParent establishes the tree edge at
// construction; it cannot be changed later. Panics if the parent is
// already disposed, mirroring child creation through a manager.
func NewScope(name string, opts ...ScopeOption) *Scope {
	var cfg scopeConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyScope(&cfg)
		}
	}

	logger := cfg.logger
	if logger == nil {
		if cfg.parent != nil {
			logger = cfg.parent.logger
		} else {
			logger = zap.NewNop()
		}
	}

	s := &Scope{
		id:         uuid.NewString(),
		name:       name,
		parent:     cfg.parent,
		logger:     logger,
		instances:  make(map[reflect.Type]any),
		tagged:     make(map[string]taggedSlot),
		tagsByType: make(map[reflect.Type]map[string]struct{}),
		factories:  make(map[Key]*factoryEntry),
		useCounts:  make(map[Key]int),
		deps:       graph.New[Key](),
		loadedSet:  make(map[string]struct{}),
	}

	if cfg.parent != nil {
		if cfg.parent.IsDisposed() {
			panic(ErrScopeDisposed)
		}
		cfg.parent.addChild(s)
		s.manager = cfg.parent.manager
	}

	if s.manager != nil {
		s.manager.track(s)
	}

	return s
}

// ID returns the unique id of this scope.
func (s *Scope) ID() string {
	return s.id
}

// Name returns the optional human-readable name of this scope.
func (s *Scope) Name() string {
	return s.name
}

// Parent returns the parent scope, or nil for a root scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// IsDisposed reports whether Close has been called.
func (s *Scope) IsDisposed() bool {
	return atomic.LoadInt32(&s.disposed) != 0
}

// Children returns a snapshot of the directly owned child scopes.
func (s *Scope) Children() []*Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]*Scope, len(s.children))
	copy(children, s.children)
	return children
}

// RegisterDisposer appends a cleanup callback that runs when the scope is
// disposed, in registration order, independent of any binding.
func (s *Scope) RegisterDisposer(fn func()) error {
	if s.IsDisposed() {
		return ErrScopeDisposed
	}
	if fn == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposers = append(s.disposers, fn)
	return nil
}

// Close disposes the scope. It is idempotent. Cleanup always runs to
// completion: module OnDispose hooks fire in reverse load order, then
// disposers in registration order, then every Disposable binding closes
// exactly once, then children are disposed depth-first from a snapshot.
// Failures along the way are logged, collected, and returned joined; they
// never abort the remaining cleanup.
func (s *Scope) Close() error {
	if !atomic.CompareAndSwapInt32(&s.disposed, 0, 1) {
		return nil
	}

	s.mu.Lock()
	disposers := s.disposers
	loaded := s.loaded
	children := make([]*Scope, len(s.children))
	copy(children, s.children)

	values := make([]any, 0, len(s.instances)+len(s.tagged))
	for _, v := range s.instances {
		values = append(values, v)
	}
	for _, slot := range s.tagged {
		values = append(values, slot.value)
	}

	s.instances = make(map[reflect.Type]any)
	s.tagged = make(map[string]taggedSlot)
	s.tagsByType = make(map[reflect.Type]map[string]struct{})
	s.factories = make(map[Key]*factoryEntry)
	s.useCounts = make(map[Key]int)
	s.deps.Clear()
	s.disposers = nil
	s.children = nil
	s.loaded = nil
	s.loadedSet = make(map[string]struct{})
	s.mu.Unlock()

	var errs []error

	for i := len(loaded) - 1; i >= 0; i-- {
		if err := s.runModuleDispose(loaded[i]); err != nil {
			errs = append(errs, err)
		}
	}

	for _, fn := range disposers {
		s.runDisposer(fn)
	}

	seen := make(map[Disposable]struct{})
	for _, v := range values {
		d, ok := v.(Disposable)
		if !ok {
			continue
		}
		if _, done := seen[d]; done {
			continue
		}
		seen[d] = struct{}{}
		if err := s.closeDisposable(d); err != nil {
			errs = append(errs, err)
		}
	}

	for _, child := range children {
		if err := child.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}
	if s.manager != nil {
		s.manager.forget(s)
	}

	if len(errs) > 0 {
		return DisposalError{
			ScopeID:   s.id,
			ScopeName: s.name,
			Cause:     errors.Join(errs...),
		}
	}

	return nil
}

// Stats returns a point-in-time snapshot of the scope's contents.
// Observability only; it never affects behavior.
func (s *Scope) Stats() ScopeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ScopeStats{
		ID:        s.id,
		Name:      s.name,
		Bindings:  len(s.instances) + len(s.tagged),
		Factories: len(s.factories),
		Children:  len(s.children),
		Disposers: len(s.disposers),
		Disposed:  s.IsDisposed(),
	}
}

// ScopeStats contains scope metrics.
type ScopeStats struct {
	ID        string
	Name      string
	Bindings  int
	Factories int
	Children  int
	Disposers int
	Disposed  bool
}

// DependencyGraphDOT renders the declared-dependency graph in Graphviz
// DOT format for debugging.
func (s *Scope) DependencyGraphDOT() string {
	var buf bytes.Buffer
	_ = s.deps.WriteDOT(&buf, func(k Key) string { return k.String() })
	return buf.String()
}

func (s *Scope) addChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

func (s *Scope) runDisposer(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scope disposer panicked",
				zap.String("scope", s.id),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func (s *Scope) closeDisposable(d Disposable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("binding disposal panicked",
				zap.String("scope", s.id),
				zap.Any("panic", r))
			err = fmt.Errorf("binding disposal panicked: %v", r)
		}
	}()

	if err = d.Close(); err != nil {
		s.logger.Error("binding disposal failed",
			zap.String("scope", s.id),
			zap.Error(err))
	}
	return err
}

func (s *Scope) runModuleDispose(m Module) (err error) {
	d, ok := m.(ModuleDisposer)
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("module OnDispose panicked",
				zap.String("scope", s.id),
				zap.String("module", m.Name()),
				zap.Any("panic", r))
			err = fmt.Errorf("module %q OnDispose panicked: %v", m.Name(), r)
		}
	}()

	if err = d.OnDispose(s); err != nil {
		s.logger.Error("module OnDispose failed",
			zap.String("scope", s.id),
			zap.String("module", m.Name()),
			zap.Error(err))
	}
	return err
}

func (s *Scope) markModuleLoaded(m Module) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loadedSet[m.Name()]; ok {
		return
	}
	s.loadedSet[m.Name()] = struct{}{}
	s.loaded = append(s.loaded, m)
}

func (s *Scope) isModuleLoaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.loadedSet[name]
	return ok
}
