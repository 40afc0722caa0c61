// Package zenify provides a hierarchical dependency-injection runtime with
// a granular reactive notification hub. Instances and factories are bound
// into scopes arranged in a tree; lookups that miss in a scope fall back
// through its parent chain, and disposing a scope cascades to everything
// it owns.
//
// # Scopes
//
// A Scope stores bindings addressed by type and an optional tag. Bindings
// come in three flavors:
//
//   - Put registers a ready instance.
//   - Lazily registers a factory invoked once, on first resolution; the
//     product is then cached like a normal binding.
//   - PutFactory registers an always-new factory re-invoked on every
//     resolution.
//
//	scope := zenify.NewScope("request")
//	zenify.Put[*Config](scope, cfg)
//	zenify.Lazily[*Database](scope, openDatabase)
//
//	db, ok := zenify.Find[*Database](scope)
//
// A child scope's binding always shadows its parent's; the parent remains
// untouched by the child's lookups.
//
// Note that Find is not a pure read: the first Find that reaches a slot
// registered with Lazily invokes the factory and caches its product. This
// is deliberate (lazy singletons materialize on demand) but it means a
// lookup can mutate scope state. Use Contains to probe for a binding
// without materializing it.
//
// Bindings registered with Permanent survive Delete unless Force is
// given. Use counts (IncrementUseCount, DecrementUseCount) are plain
// reference counters for auto-disposal policies layered on top; the core
// only keeps them consistent across the scope chain.
//
// # Managers
//
// A ScopeManager owns the root scope, a current-scope cursor, and name/id
// indexes. Construct one manager per process or per test rather than
// sharing global state:
//
//	manager := zenify.NewScopeManager()
//	defer manager.Close()
//
//	scope, err := manager.CreateScope("session")
//	manager.RunInScope(scope, func() {
//	    // manager.CurrentScope() == scope in here
//	})
//
// # Notifications
//
// The Hub fans out change events by (type, tag) key. Subscribing invokes
// the callback once immediately with the currently resolved value (nil if
// nothing is bound yet); producers call NotifyListeners after mutating a
// value:
//
//	sub := manager.Hub().Listen(zenify.KeyOf[*Counter](), func(v any) {
//	    render(v)
//	})
//	defer sub.Close()
//
//	counter.Add(1)
//	manager.Hub().NotifyListeners(zenify.KeyOf[*Counter]())
//
// A panicking listener is caught and counted at the hub boundary; its
// siblings still run and the notifier never sees the failure.
//
// # Modules
//
// Modules group registrations and declare dependencies on other modules.
// RegisterModules validates the dependency graph, orders it topologically,
// and loads each module exactly once, failing fast on the first error.
package zenify
