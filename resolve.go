package zenify

import "fmt"

// Put binds instance under the static type T, which may be an interface.
//
//	err := zenify.Put[Repository](scope, postgresRepo)
func Put[T any](s *Scope, instance T, opts ...BindOption) error {
	var boxed any = instance
	if boxed == nil {
		return ErrNilInstance
	}
	return s.Put(typeOf[T](), boxed, opts...)
}

// Lazily registers a lazy-singleton factory for T. The factory runs once,
// on the first Find that reaches the slot; its product is then cached.
func Lazily[T any](s *Scope, factory func() T, opts ...BindOption) error {
	if factory == nil {
		return ErrNilFactory
	}
	return s.Lazily(typeOf[T](), func() any { return factory() }, opts...)
}

// PutFactory registers an always-new factory for T; every Find invokes it
// and returns a fresh instance.
func PutFactory[T any](s *Scope, factory func() T, opts ...BindOption) error {
	if factory == nil {
		return ErrNilFactory
	}
	return s.PutFactory(typeOf[T](), func() any { return factory() }, opts...)
}

// Find resolves T from the scope, falling back through the parent chain.
// The boolean reports whether a binding was found anywhere in the chain.
//
// Find is not a pure read: the first resolution of a slot registered with
// Lazily invokes the factory and caches its product.
func Find[T any](s *Scope, opts ...FindOption) (T, bool) {
	v, ok := s.Find(typeOf[T](), opts...)
	if !ok {
		var zero T
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}

// FindLocal resolves T from this scope only, never the parent chain.
func FindLocal[T any](s *Scope, opts ...FindOption) (T, bool) {
	v, ok := s.FindLocal(typeOf[T](), opts...)
	if !ok {
		var zero T
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}

// MustFind resolves T or panics. Intended for wiring code where a missing
// binding is a programming error.
func MustFind[T any](s *Scope, opts ...FindOption) T {
	v, ok := Find[T](s, opts...)
	if !ok {
		panic(fmt.Sprintf("zenify: no binding for %s", KeyOf[T](newFindConfig(opts).tag)))
	}
	return v
}

// Contains reports whether T is bound in the scope or an ancestor,
// without materializing pending factories.
func Contains[T any](s *Scope, opts ...FindOption) bool {
	return s.Contains(typeOf[T](), opts...)
}

// Delete removes T's binding from the scope. See Scope.Delete for the
// permanent-binding contract.
func Delete[T any](s *Scope, opts ...DeleteOption) bool {
	return s.Delete(typeOf[T](), opts...)
}

// IncrementUseCount raises the reference count for T's binding.
func IncrementUseCount[T any](s *Scope, opts ...FindOption) int {
	return s.IncrementUseCount(typeOf[T](), opts...)
}

// DecrementUseCount lowers the reference count for T's binding.
func DecrementUseCount[T any](s *Scope, opts ...FindOption) int {
	return s.DecrementUseCount(typeOf[T](), opts...)
}
