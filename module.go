package zenify

import (
	"context"

	"github.com/sdegenaar/zenify/internal/graph"
)

// Module is a unit of grouped registrations with declared inter-module
// dependencies. Modules are compared by name; declaring a dependency
// guarantees it registers and initializes first.
type Module interface {
	// Name returns the unique module name.
	Name() string

	// Dependencies returns the modules this module requires.
	Dependencies() []Module

	// Register binds this module's objects into the scope.
	Register(s *Scope) error
}

// ModuleInitializer is implemented by modules that need post-registration
// setup. The loader awaits OnInit to completion before moving to the next
// module, preserving the topological guarantee.
type ModuleInitializer interface {
	OnInit(ctx context.Context, s *Scope) error
}

// ModuleDisposer is implemented by modules that need teardown. Hooks run
// in reverse load order when the scope holding the module is disposed;
// failures are logged and collected, never propagated mid-teardown.
type ModuleDisposer interface {
	OnDispose(s *Scope) error
}

// A ModuleOption configures a module built with NewModule.
type ModuleOption interface {
	applyModule(*builtModule)
}

type moduleDepsOption []Module

func (o moduleDepsOption) applyModule(m *builtModule) {
	m.deps = append(m.deps, o...)
}

// DependsOnModules declares the modules that must load first.
func DependsOnModules(deps ...Module) ModuleOption {
	return moduleDepsOption(deps)
}

type moduleInitOption func(ctx context.Context, s *Scope) error

func (o moduleInitOption) applyModule(m *builtModule) { m.onInit = o }

// OnInit sets the module's post-registration hook.
func OnInit(fn func(ctx context.Context, s *Scope) error) ModuleOption {
	return moduleInitOption(fn)
}

type moduleDisposeOption func(s *Scope) error

func (o moduleDisposeOption) applyModule(m *builtModule) { m.onDispose = o }

// OnDispose sets the module's teardown hook.
func OnDispose(fn func(s *Scope) error) ModuleOption {
	return moduleDisposeOption(fn)
}

// NewModule builds a module from a name, a registration function, and
// options.
//
// Example:
//
//	var DatabaseModule = zenify.NewModule("database",
//	    func(s *zenify.Scope) error {
//	        return zenify.Put[*ConnectionPool](s, NewConnectionPool())
//	    },
//	)
//
//	var AppModule = zenify.NewModule("app",
//	    registerAppServices,
//	    zenify.DependsOnModules(DatabaseModule),
//	)
func NewModule(name string, register func(s *Scope) error, opts ...ModuleOption) Module {
	m := &builtModule{name: name, register: register}
	for _, opt := range opts {
		if opt != nil {
			opt.applyModule(m)
		}
	}
	return m
}

type builtModule struct {
	name      string
	deps      []Module
	register  func(s *Scope) error
	onInit    func(ctx context.Context, s *Scope) error
	onDispose func(s *Scope) error
}

func (m *builtModule) Name() string           { return m.name }
func (m *builtModule) Dependencies() []Module { return m.deps }

func (m *builtModule) Register(s *Scope) error {
	if m.register == nil {
		return nil
	}
	return m.register(s)
}

func (m *builtModule) OnInit(ctx context.Context, s *Scope) error {
	if m.onInit == nil {
		return nil
	}
	return m.onInit(ctx, s)
}

func (m *builtModule) OnDispose(s *Scope) error {
	if m.onDispose == nil {
		return nil
	}
	return m.onDispose(s)
}

// RegisterModules loads modules and their transitive dependencies into
// scope: the full set is collected and de-duplicated by name, validated
// against circular dependencies before any Register runs, ordered
// topologically (dependencies first), and then each module's Register and
// OnInit run in order. Modules the scope already loaded are skipped.
//
// The policy is fail-fast: the first Register or OnInit error aborts the
// remaining loads and surfaces to the caller unmodified. No rollback of
// already-loaded modules is attempted.
func RegisterModules(ctx context.Context, scope *Scope, modules ...Module) error {
	if scope.IsDisposed() {
		return ErrScopeDisposed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	byName, err := collectModules(modules)
	if err != nil {
		return err
	}

	g := graph.New[string]()
	for name, m := range byName {
		depNames := make([]string, 0, len(m.Dependencies()))
		for _, dep := range m.Dependencies() {
			depNames = append(depNames, dep.Name())
		}
		g.AddNode(name, depNames...)
	}

	if err := g.DetectCycles(); err != nil {
		return err
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return err
	}

	for _, name := range order {
		m := byName[name]
		if scope.isModuleLoaded(name) {
			continue
		}

		if err := m.Register(scope); err != nil {
			return err
		}

		if init, ok := m.(ModuleInitializer); ok {
			if err := init.OnInit(ctx, scope); err != nil {
				return err
			}
		}

		scope.markModuleLoaded(m)
	}

	return nil
}

// collectModules gathers the transitive module set, de-duplicated by
// name. The first module seen under a name wins.
func collectModules(modules []Module) (map[string]Module, error) {
	byName := make(map[string]Module)

	var visit func(m Module) error
	visit = func(m Module) error {
		if m == nil {
			return ErrNilModule
		}
		name := m.Name()
		if name == "" {
			return ErrEmptyModuleName
		}
		if _, seen := byName[name]; seen {
			return nil
		}
		byName[name] = m

		for _, dep := range m.Dependencies() {
			if dep == nil {
				return ModuleError{Module: name, Cause: ErrNilModule}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range modules {
		if err := visit(m); err != nil {
			return nil, err
		}
	}

	return byName, nil
}
