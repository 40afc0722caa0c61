package zenify

import (
	"errors"
	"fmt"

	"github.com/sdegenaar/zenify/internal/graph"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================

var (
	// Scope lifecycle errors.
	ErrScopeDisposed = errors.New("scope has been disposed")
	ErrManagerClosed = errors.New("scope manager has been closed")

	// Registration errors.
	ErrNilInstance     = errors.New("instance cannot be nil")
	ErrNilFactory      = errors.New("factory cannot be nil")
	ErrNilServiceType  = errors.New("service type cannot be nil")
	ErrScopeNameInUse  = errors.New("scope name already in use")
	ErrNilModule       = errors.New("module cannot be nil")
	ErrEmptyModuleName = errors.New("module name cannot be empty")
)

// CircularDependencyError reports a cycle in a scope's declared-dependency
// graph. The node and path identify the offending bindings.
type CircularDependencyError = graph.CycleError[Key]

// ModuleCycleError reports a cycle between module dependencies.
type ModuleCycleError = graph.CycleError[string]

// ModuleError wraps structural failures while assembling a module set.
// Registration and OnInit failures are never wrapped; they surface to the
// caller unmodified.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// DisposalError wraps errors collected while disposing a scope. Disposal
// always runs to completion; this reports what went wrong along the way.
type DisposalError struct {
	ScopeID   string
	ScopeName string
	Cause     error
}

func (e DisposalError) Error() string {
	if e.ScopeName != "" {
		return fmt.Sprintf("disposing scope %s (%s): %v", e.ScopeName, e.ScopeID, e.Cause)
	}
	return fmt.Sprintf("disposing scope %s: %v", e.ScopeID, e.Cause)
}

func (e DisposalError) Unwrap() error {
	return e.Cause
}
