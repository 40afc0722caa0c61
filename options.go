package zenify

import "go.uber.org/zap"

// ========================================
// Binding options
// ========================================

// A BindOption modifies the default behavior of Put, Lazily, and PutFactory.
type BindOption interface {
	applyBind(*bindConfig)
}

type bindConfig struct {
	tag       string
	permanent bool
	deps      []Key
}

// A FindOption modifies the default behavior of Find, FindLocal, Contains,
// and the use-count operations.
type FindOption interface {
	applyFind(*findConfig)
}

type findConfig struct {
	tag string
}

// A DeleteOption modifies the default behavior of Delete and its variants.
type DeleteOption interface {
	applyDelete(*deleteConfig)
}

type deleteConfig struct {
	tag   string
	force bool
}

// tagOption applies to bind, find, and delete calls alike.
type tagOption string

func (o tagOption) applyBind(c *bindConfig)     { c.tag = string(o) }
func (o tagOption) applyFind(c *findConfig)     { c.tag = string(o) }
func (o tagOption) applyDelete(c *deleteConfig) { c.tag = string(o) }

// Tagged addresses the tagged slot instead of the type's default slot.
func Tagged(tag string) interface {
	BindOption
	FindOption
	DeleteOption
} {
	return tagOption(tag)
}

type permanentOption struct{}

func (permanentOption) applyBind(c *bindConfig) { c.permanent = true }

// Permanent marks a binding as exempt from deletion unless Force is given.
func Permanent() BindOption {
	return permanentOption{}
}

type dependsOnOption []Key

func (o dependsOnOption) applyBind(c *bindConfig) {
	c.deps = append(c.deps, o...)
}

// DependsOn declares the binding's dependencies for cycle detection.
// Declared edges never influence resolution order.
func DependsOn(deps ...Key) BindOption {
	return dependsOnOption(deps)
}

type forceOption struct{}

func (forceOption) applyDelete(c *deleteConfig) { c.force = true }

// Force allows Delete to remove a permanent binding.
func Force() DeleteOption {
	return forceOption{}
}

func newBindConfig(opts []BindOption) bindConfig {
	var c bindConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyBind(&c)
		}
	}
	return c
}

func newFindConfig(opts []FindOption) findConfig {
	var c findConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyFind(&c)
		}
	}
	return c
}

func newDeleteConfig(opts []DeleteOption) deleteConfig {
	var c deleteConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyDelete(&c)
		}
	}
	return c
}

// ========================================
// Scope options
// ========================================

// A ScopeOption modifies a scope at construction time.
type ScopeOption interface {
	applyScope(*scopeConfig)
}

type scopeConfig struct {
	parent *Scope
	logger *zap.Logger
}

type scopeParentOption struct{ parent *Scope }

func (o scopeParentOption) applyScope(c *scopeConfig) { c.parent = o.parent }

// WithParent attaches the new scope under parent. The tree edge is
// established at construction and is immutable afterward.
func WithParent(parent *Scope) ScopeOption {
	return scopeParentOption{parent: parent}
}

type scopeLoggerOption struct{ logger *zap.Logger }

func (o scopeLoggerOption) applyScope(c *scopeConfig) { c.logger = o.logger }

// WithLogger sets the logger used for warning and error reporting.
// Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) ScopeOption {
	return scopeLoggerOption{logger: logger}
}

// ========================================
// Manager options
// ========================================

// A ManagerOption modifies a ScopeManager at construction time.
type ManagerOption interface {
	applyManager(*managerConfig)
}

type managerConfig struct {
	logger *zap.Logger
}

type managerLoggerOption struct{ logger *zap.Logger }

func (o managerLoggerOption) applyManager(c *managerConfig) { c.logger = o.logger }

// WithManagerLogger sets the logger shared by the manager, its root scope,
// and its hub. Defaults to zap.NewNop.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return managerLoggerOption{logger: logger}
}

// ========================================
// Hub options
// ========================================

// A HubOption modifies a Hub at construction time.
type HubOption interface {
	applyHub(*hubConfig)
}

type hubConfig struct {
	logger     *zap.Logger
	resolver   Resolver
	sweepEvery uint64
}

type hubLoggerOption struct{ logger *zap.Logger }

func (o hubLoggerOption) applyHub(c *hubConfig) { c.logger = o.logger }

// WithHubLogger sets the logger used for listener failure reporting.
func WithHubLogger(logger *zap.Logger) HubOption {
	return hubLoggerOption{logger: logger}
}

type hubResolverOption struct{ resolver Resolver }

func (o hubResolverOption) applyHub(c *hubConfig) { c.resolver = o.resolver }

// WithResolver sets the function the hub uses to look up the current value
// for a key when invoking listeners.
func WithResolver(resolver Resolver) HubOption {
	return hubResolverOption{resolver: resolver}
}

type hubSweepOption uint64

func (o hubSweepOption) applyHub(c *hubConfig) { c.sweepEvery = uint64(o) }

// WithSweepInterval runs a maintenance sweep every n notifications.
// Zero disables periodic sweeps.
func WithSweepInterval(n uint64) HubOption {
	return hubSweepOption(n)
}
