package zenify

import (
	"reflect"

	"go.uber.org/zap"
)

// Put binds instance under serviceType, or under the tagged slot when
// Tagged is given. A prior occupant of the slot is replaced; if the
// outgoing value implements Disposable it is closed first. Permanent
// marks the binding as exempt from force-less deletion, DependsOn
// records edges for cycle detection.
func (s *Scope) Put(serviceType reflect.Type, instance any, opts ...BindOption) error {
	if s.IsDisposed() {
		return ErrScopeDisposed
	}
	if serviceType == nil {
		return ErrNilServiceType
	}
	if isNilValue(instance) {
		return ErrNilInstance
	}

	cfg := newBindConfig(opts)
	key := Key{Type: serviceType, Tag: cfg.tag}

	s.mu.Lock()
	outgoing := s.replaceSlotLocked(key, instance)
	if cfg.permanent {
		s.useCounts[key] = usePermanent
	} else {
		s.useCounts[key] = 0
	}
	s.deps.AddNode(key, cfg.deps...)
	s.mu.Unlock()

	if outgoing != nil {
		s.disposeReplaced(key, outgoing, instance)
	}

	return nil
}

// Lazily registers a factory that is invoked exactly once, on the first
// resolution of the slot. The produced value replaces the factory entry
// and is cached like a normal binding. The factory is not invoked here.
func (s *Scope) Lazily(serviceType reflect.Type, factory func() any, opts ...BindOption) error {
	if s.IsDisposed() {
		return ErrScopeDisposed
	}
	if serviceType == nil {
		return ErrNilServiceType
	}
	if factory == nil {
		return ErrNilFactory
	}

	cfg := newBindConfig(opts)
	key := Key{Type: serviceType, Tag: cfg.tag}

	s.mu.Lock()
	s.factories[key] = &factoryEntry{fn: factory, permanent: cfg.permanent}
	if cfg.permanent {
		// The binding is permanent from registration, not from first use.
		s.useCounts[key] = usePermanent
	}
	s.deps.AddNode(key, cfg.deps...)
	s.mu.Unlock()

	return nil
}

// PutFactory registers an always-new factory: every resolution invokes it
// and returns a fresh instance. Nothing is ever cached for the slot.
func (s *Scope) PutFactory(serviceType reflect.Type, factory func() any, opts ...BindOption) error {
	if s.IsDisposed() {
		return ErrScopeDisposed
	}
	if serviceType == nil {
		return ErrNilServiceType
	}
	if factory == nil {
		return ErrNilFactory
	}

	cfg := newBindConfig(opts)
	key := Key{Type: serviceType, Tag: cfg.tag}

	s.mu.Lock()
	s.factories[key] = &factoryEntry{fn: factory, alwaysNew: true}
	s.useCounts[key] = useFactory
	s.deps.AddNode(key, cfg.deps...)
	s.mu.Unlock()

	return nil
}

// Find resolves serviceType in this scope first, then walks the parent
// chain on a miss. A child's binding always shadows its parent's; the
// parent is read, never mutated, by a child's lookup.
//
// Resolution of a pending lazy factory materializes it as a side effect.
func (s *Scope) Find(serviceType reflect.Type, opts ...FindOption) (any, bool) {
	if v, ok := s.FindLocal(serviceType, opts...); ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Find(serviceType, opts...)
	}
	return nil, false
}

// FindLocal resolves serviceType against this scope only, never the
// parent chain. A pending lazy factory is invoked and, unless always-new,
// its product is cached and the factory entry removed.
func (s *Scope) FindLocal(serviceType reflect.Type, opts ...FindOption) (any, bool) {
	if s.IsDisposed() || serviceType == nil {
		return nil, false
	}

	cfg := newFindConfig(opts)
	key := Key{Type: serviceType, Tag: cfg.tag}

	s.mu.RLock()
	if v, ok := s.slotLocked(key); ok {
		s.mu.RUnlock()
		return v, true
	}
	entry, ok := s.factories[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Invoke outside the lock; a factory may resolve its own dependencies
	// through this scope.
	produced := entry.fn()

	if entry.alwaysNew {
		if isNilValue(produced) {
			return nil, false
		}
		return produced, true
	}

	return s.materialize(key, entry, produced)
}

// materialize caches a lazy singleton's product and retires the factory.
func (s *Scope) materialize(key Key, entry *factoryEntry, produced any) (any, bool) {
	if isNilValue(produced) {
		s.logger.Warn("lazy factory produced nil, removing binding",
			zap.String("scope", s.id),
			zap.Stringer("key", key))
		s.mu.Lock()
		if s.factories[key] == entry {
			delete(s.factories, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	s.mu.Lock()
	if v, ok := s.slotLocked(key); ok {
		// Another resolution materialized first; keep its product.
		s.mu.Unlock()
		return v, true
	}
	if s.factories[key] != entry {
		// The slot was deleted or rebound while the factory ran; hand the
		// product to the caller but do not resurrect the binding.
		s.mu.Unlock()
		return produced, true
	}
	delete(s.factories, key)
	s.storeSlotLocked(key, produced)
	if entry.permanent {
		s.useCounts[key] = usePermanent
	} else if _, ok := s.useCounts[key]; !ok {
		// A use count may already exist from chain-aware increments that
		// landed while the factory was still pending.
		s.useCounts[key] = 0
	}
	s.mu.Unlock()

	return produced, true
}

// Contains reports whether the slot is bound in this scope or an ancestor,
// without materializing pending factories.
func (s *Scope) Contains(serviceType reflect.Type, opts ...FindOption) bool {
	if s.ContainsLocal(serviceType, opts...) {
		return true
	}
	if s.parent != nil {
		return s.parent.Contains(serviceType, opts...)
	}
	return false
}

// ContainsLocal reports whether the slot is bound in this scope only.
func (s *Scope) ContainsLocal(serviceType reflect.Type, opts ...FindOption) bool {
	if s.IsDisposed() || serviceType == nil {
		return false
	}

	cfg := newFindConfig(opts)
	key := Key{Type: serviceType, Tag: cfg.tag}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.slotBoundLocked(key) {
		return true
	}
	_, pending := s.factories[key]
	return pending
}

// Delete removes the binding and any pending factory for the slot.
// Permanent bindings refuse deletion unless Force is given; the refusal
// is reported as false with a warning, never as an error, and leaves the
// binding untouched. A removed Disposable value is closed.
func (s *Scope) Delete(serviceType reflect.Type, opts ...DeleteOption) bool {
	if s.IsDisposed() {
		s.logger.Warn("delete on disposed scope", zap.String("scope", s.id))
		return false
	}
	if serviceType == nil {
		return false
	}

	cfg := newDeleteConfig(opts)
	return s.deleteKey(Key{Type: serviceType, Tag: cfg.tag}, cfg.force)
}

// DeleteByTag removes the binding occupying the tagged slot when only the
// tag is known; the slot carries its registration key.
func (s *Scope) DeleteByTag(tag string, opts ...DeleteOption) bool {
	if s.IsDisposed() {
		s.logger.Warn("delete on disposed scope", zap.String("scope", s.id))
		return false
	}
	if tag == "" {
		return false
	}

	cfg := newDeleteConfig(opts)

	s.mu.RLock()
	slot, ok := s.tagged[tag]
	key := slot.key
	if !ok {
		for k := range s.factories {
			if k.Tag == tag {
				key = k
				ok = true
				break
			}
		}
	}
	s.mu.RUnlock()

	if !ok {
		s.logger.Warn("delete: nothing bound for tag",
			zap.String("scope", s.id),
			zap.String("tag", tag))
		return false
	}

	return s.deleteKey(key, cfg.force)
}

// DeleteByType removes the untagged binding and every tagged binding of
// the given runtime type. Returns true if at least one slot was removed.
func (s *Scope) DeleteByType(serviceType reflect.Type, opts ...DeleteOption) bool {
	if s.IsDisposed() {
		s.logger.Warn("delete on disposed scope", zap.String("scope", s.id))
		return false
	}
	if serviceType == nil {
		return false
	}

	cfg := newDeleteConfig(opts)

	s.mu.RLock()
	keys := make([]Key, 0, 4)
	if s.slotBoundLocked(Key{Type: serviceType}) {
		keys = append(keys, Key{Type: serviceType})
	}
	for tag := range s.tagsByType[serviceType] {
		keys = append(keys, Key{Type: serviceType, Tag: tag})
	}
	for k := range s.factories {
		if k.Type == serviceType && k.Tag != "" {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	removed := false
	for _, key := range keys {
		if s.deleteKey(key, cfg.force) {
			removed = true
		}
	}
	return removed
}

func (s *Scope) deleteKey(key Key, force bool) bool {
	s.mu.Lock()

	key = s.canonicalKeyLocked(key)
	value, bound := s.slotLocked(key)
	_, pending := s.factories[key]
	if !bound && !pending {
		s.mu.Unlock()
		s.logger.Warn("delete: nothing bound",
			zap.String("scope", s.id),
			zap.Stringer("key", key))
		return false
	}

	if s.useCounts[key] == usePermanent && !force {
		s.mu.Unlock()
		s.logger.Warn("delete refused for permanent binding, use Force",
			zap.String("scope", s.id),
			zap.Stringer("key", key))
		return false
	}

	s.clearSlotLocked(key)
	delete(s.factories, key)
	delete(s.useCounts, key)
	s.deps.RemoveNode(key)
	s.mu.Unlock()

	if bound {
		if d, ok := value.(Disposable); ok {
			_ = s.closeDisposable(d)
		}
	}

	return true
}

// IncrementUseCount raises the reference count for an existing binding,
// delegating to the parent chain when the slot is not bound locally.
// Sentinel counts (permanent, always-new) are preserved untouched.
// Returns the count after the operation, or 0 when nothing is bound.
func (s *Scope) IncrementUseCount(serviceType reflect.Type, opts ...FindOption) int {
	return s.adjustUseCount(serviceType, newFindConfig(opts).tag, +1)
}

// DecrementUseCount lowers the reference count for an existing binding,
// never below zero, with the same chain and sentinel behavior as
// IncrementUseCount.
func (s *Scope) DecrementUseCount(serviceType reflect.Type, opts ...FindOption) int {
	return s.adjustUseCount(serviceType, newFindConfig(opts).tag, -1)
}

// UseCount returns the current count for the slot, walking the parent
// chain like the mutating variants. Sentinels are returned as-is.
func (s *Scope) UseCount(serviceType reflect.Type, opts ...FindOption) int {
	if s.IsDisposed() || serviceType == nil {
		return 0
	}

	key := Key{Type: serviceType, Tag: newFindConfig(opts).tag}

	s.mu.RLock()
	key = s.canonicalKeyLocked(key)
	if s.slotBoundLocked(key) || s.factories[key] != nil {
		count := s.useCounts[key]
		s.mu.RUnlock()
		return count
	}
	s.mu.RUnlock()

	if s.parent != nil {
		return s.parent.UseCount(serviceType, opts...)
	}
	return 0
}

func (s *Scope) adjustUseCount(serviceType reflect.Type, tag string, delta int) int {
	if s.IsDisposed() || serviceType == nil {
		return 0
	}

	key := Key{Type: serviceType, Tag: tag}

	s.mu.Lock()
	key = s.canonicalKeyLocked(key)
	if s.slotBoundLocked(key) || s.factories[key] != nil {
		count := s.useCounts[key]
		if count < 0 {
			s.mu.Unlock()
			return count
		}
		count += delta
		if count < 0 {
			count = 0
		}
		s.useCounts[key] = count
		s.mu.Unlock()
		return count
	}
	s.mu.Unlock()

	if s.parent != nil {
		return s.parent.adjustUseCount(serviceType, tag, delta)
	}
	return 0
}

// CheckCycles walks the declared-dependency graph from start. A node met
// while still on the traversal stack means a cycle. Traversal panics are
// treated conservatively as a cycle, never as success.
func (s *Scope) CheckCycles(start Key) (err error) {
	if s.IsDisposed() {
		return ErrScopeDisposed
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle detection panicked, assuming cycle",
				zap.String("scope", s.id),
				zap.Stringer("start", start),
				zap.Any("panic", r))
			err = &CircularDependencyError{Node: start, Path: []Key{start, start}}
		}
	}()

	return s.deps.DetectCyclesFrom(start)
}

// ========================================
// Slot helpers (callers hold s.mu)
// ========================================

// slotLocked reads the instance occupying key's slot, if any. A tagged
// hit must be assignable to the requested type to count.
func (s *Scope) slotLocked(key Key) (any, bool) {
	if key.Tag != "" {
		slot, ok := s.tagged[key.Tag]
		if !ok {
			return nil, false
		}
		if key.Type != nil && !reflect.TypeOf(slot.value).AssignableTo(key.Type) {
			return nil, false
		}
		return slot.value, true
	}

	v, ok := s.instances[key.Type]
	return v, ok
}

// canonicalKeyLocked maps a tagged lookup key to the key its slot was
// registered under, so sentinel checks and cleanup hit the right entries
// even when the lookup used an assignable but different type.
func (s *Scope) canonicalKeyLocked(key Key) Key {
	if key.Tag == "" {
		return key
	}
	slot, ok := s.tagged[key.Tag]
	if !ok {
		return key
	}
	if key.Type == nil || reflect.TypeOf(slot.value).AssignableTo(key.Type) {
		return slot.key
	}
	return key
}

// isNilValue reports whether v is nil, including a typed nil boxed in a
// non-nil interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func (s *Scope) slotBoundLocked(key Key) bool {
	_, ok := s.slotLocked(key)
	return ok
}

// storeSlotLocked writes instance into key's slot and maintains the
// type-to-tags reverse index, keyed by the registration type.
func (s *Scope) storeSlotLocked(key Key, instance any) {
	if key.Tag == "" {
		s.instances[key.Type] = instance
		return
	}

	s.tagged[key.Tag] = taggedSlot{key: key, value: instance}
	tags, ok := s.tagsByType[key.Type]
	if !ok {
		tags = make(map[string]struct{})
		s.tagsByType[key.Type] = tags
	}
	tags[key.Tag] = struct{}{}
}

// clearSlotLocked removes key's slot and its reverse-index entry.
func (s *Scope) clearSlotLocked(key Key) {
	if key.Tag == "" {
		delete(s.instances, key.Type)
		return
	}

	slot, ok := s.tagged[key.Tag]
	if !ok {
		return
	}
	delete(s.tagged, key.Tag)

	if tags, ok := s.tagsByType[slot.key.Type]; ok {
		delete(tags, key.Tag)
		if len(tags) == 0 {
			delete(s.tagsByType, slot.key.Type)
		}
	}
}

// replaceSlotLocked swaps key's slot to instance, retiring any pending
// factory, and returns the previous occupant for disposal.
func (s *Scope) replaceSlotLocked(key Key, instance any) any {
	var outgoing any
	if key.Tag != "" {
		if slot, ok := s.tagged[key.Tag]; ok {
			outgoing = slot.value
			if slot.key != key {
				// Rebinding the tag under a different type retires the old
				// key's bookkeeping.
				delete(s.useCounts, slot.key)
				delete(s.factories, slot.key)
			}
		}
	} else if v, ok := s.instances[key.Type]; ok {
		outgoing = v
	}

	s.clearSlotLocked(key)
	delete(s.factories, key)
	s.storeSlotLocked(key, instance)
	return outgoing
}

func (s *Scope) disposeReplaced(key Key, outgoing, incoming any) {
	if outgoing == incoming {
		return
	}
	d, ok := outgoing.(Disposable)
	if !ok {
		return
	}

	s.logger.Debug("disposing replaced binding",
		zap.String("scope", s.id),
		zap.Stringer("key", key))
	_ = s.closeDisposable(d)
}
