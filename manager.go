package zenify

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ScopeManager creates, names, and tracks scopes. It owns the root scope
// and a current-scope cursor that new scopes attach under by default.
// Construct one manager per process (or per test) instead of relying on
// package-level state.
type ScopeManager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	root    *Scope
	current *Scope
	byID    map[string]*Scope
	byName  map[string]*Scope

	hub    *Hub
	closed int32
}

// NewScopeManager creates a manager with a fresh root scope and a hub
// wired to resolve values through the current scope.
func NewScopeManager(opts ...ManagerOption) *ScopeManager {
	var cfg managerConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyManager(&cfg)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ScopeManager{
		logger: logger,
		byID:   make(map[string]*Scope),
		byName: make(map[string]*Scope),
	}

	root := NewScope("root", WithLogger(logger))
	root.manager = m
	m.root = root
	m.current = root
	m.byID[root.id] = root
	m.byName[root.name] = root

	m.hub = NewHub(
		WithHubLogger(logger),
		WithResolver(func(key Key) (any, bool) {
			current := m.CurrentScope()
			if current == nil {
				return nil, false
			}
			if key.Tag != "" {
				return current.Find(key.Type, Tagged(key.Tag))
			}
			return current.Find(key.Type)
		}),
	)

	return m
}

// RootScope returns the root of the managed scope tree.
func (m *ScopeManager) RootScope() *Scope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// CurrentScope returns the scope new work attaches under by default.
func (m *ScopeManager) CurrentScope() *Scope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Hub returns the manager's notification hub.
func (m *ScopeManager) Hub() *Hub {
	return m.hub
}

// CreateScope allocates a named scope wired into the tree. The parent
// defaults to the current scope; WithParent overrides it. Names must be
// unique among live scopes; the empty name skips the name index.
func (m *ScopeManager) CreateScope(name string, opts ...ScopeOption) (*Scope, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}

	var cfg scopeConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyScope(&cfg)
		}
	}

	m.mu.Lock()
	if name != "" {
		if existing, taken := m.byName[name]; taken && !existing.IsDisposed() {
			m.mu.Unlock()
			return nil, ErrScopeNameInUse
		}
	}
	parent := cfg.parent
	if parent == nil {
		parent = m.current
	}
	m.mu.Unlock()

	if parent.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	scopeOpts := []ScopeOption{WithParent(parent)}
	if cfg.logger != nil {
		scopeOpts = append(scopeOpts, WithLogger(cfg.logger))
	}

	// NewScope calls back into track for the indexes.
	return NewScope(name, scopeOpts...), nil
}

// ScopeByName returns the live scope with the given name. Disposed scopes
// are invisible to lookups.
func (m *ScopeManager) ScopeByName(name string) (*Scope, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byName[name]
	if !ok || s.IsDisposed() {
		return nil, false
	}
	return s, true
}

// ScopeByID returns the live scope with the given id.
func (m *ScopeManager) ScopeByID(id string) (*Scope, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byID[id]
	if !ok || s.IsDisposed() {
		return nil, false
	}
	return s, true
}

// RunInScope makes scope the current scope for the duration of fn and
// restores the previous cursor afterward, even if fn panics.
func (m *ScopeManager) RunInScope(scope *Scope, fn func()) {
	if scope == nil || fn == nil {
		return
	}

	m.mu.Lock()
	previous := m.current
	m.current = scope
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		// The previous scope may have been disposed inside fn.
		if previous != nil && !previous.IsDisposed() {
			m.current = previous
		} else {
			m.current = m.root
		}
		m.mu.Unlock()
	}()

	fn()
}

// Close disposes the whole scope tree from the root down and clears the
// indexes. Idempotent.
func (m *ScopeManager) Close() error {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}

	err := m.root.Close()

	m.mu.Lock()
	m.byID = make(map[string]*Scope)
	m.byName = make(map[string]*Scope)
	m.current = m.root
	m.mu.Unlock()

	return err
}

// track indexes a scope created inside this manager's tree.
func (m *ScopeManager) track(s *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[s.id] = s
	if s.name == "" {
		return
	}
	if existing, taken := m.byName[s.name]; taken && !existing.IsDisposed() && existing != s {
		m.logger.Warn("scope name already indexed, skipping name index",
			zap.String("name", s.name),
			zap.String("scope", s.id))
		return
	}
	m.byName[s.name] = s
}

// forget prunes a disposed scope from the indexes and repairs the
// current-scope cursor if it pointed at the disposed scope.
func (m *ScopeManager) forget(s *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byID, s.id)
	if m.byName[s.name] == s {
		delete(m.byName, s.name)
	}

	if m.current == s {
		if s.parent != nil && !s.parent.IsDisposed() {
			m.current = s.parent
		} else {
			m.current = m.root
		}
	}
}

func (m *ScopeManager) isClosed() bool {
	return atomic.LoadInt32(&m.closed) != 0
}
