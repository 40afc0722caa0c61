package zenify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdegenaar/zenify"
	"github.com/sdegenaar/zenify/internal/testutil"
)

func TestRegisterModules_Ordering(t *testing.T) {
	t.Run("dependencies register before dependents", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })
		recorder := &testutil.CallRecorder{}

		database := zenify.NewModule("database", func(s *zenify.Scope) error {
			recorder.Record("database")
			return zenify.Put(s, &testutil.TestDatabase{DSN: "test"})
		})
		repository := zenify.NewModule("repository", func(s *zenify.Scope) error {
			recorder.Record("repository")
			_, ok := zenify.Find[*testutil.TestDatabase](s)
			require.True(t, ok, "dependency must already be bound")
			return nil
		}, zenify.DependsOnModules(database))

		require.NoError(t, zenify.RegisterModules(context.Background(), scope, repository))
		assert.Equal(t, []string{"database", "repository"}, recorder.Calls())
	})

	t.Run("transitive dependencies are collected and de-duplicated", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })
		recorder := &testutil.CallRecorder{}

		base := zenify.NewModule("base", func(*zenify.Scope) error {
			recorder.Record("base")
			return nil
		})
		left := zenify.NewModule("left", func(*zenify.Scope) error {
			recorder.Record("left")
			return nil
		}, zenify.DependsOnModules(base))
		right := zenify.NewModule("right", func(*zenify.Scope) error {
			recorder.Record("right")
			return nil
		}, zenify.DependsOnModules(base))
		app := zenify.NewModule("app", func(*zenify.Scope) error {
			recorder.Record("app")
			return nil
		}, zenify.DependsOnModules(left, right))

		require.NoError(t, zenify.RegisterModules(context.Background(), scope, app))

		calls := recorder.Calls()
		require.Len(t, calls, 4, "base must register once despite two dependents")
		assert.Equal(t, "base", calls[0])
		assert.Equal(t, "app", calls[3])
	})

	t.Run("already loaded modules are skipped", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })
		recorder := &testutil.CallRecorder{}

		m := zenify.NewModule("idempotent", func(*zenify.Scope) error {
			recorder.Record("register")
			return nil
		})

		require.NoError(t, zenify.RegisterModules(context.Background(), scope, m))
		require.NoError(t, zenify.RegisterModules(context.Background(), scope, m))
		assert.Equal(t, 1, recorder.Count())
	})
}

func TestRegisterModules_Validation(t *testing.T) {
	t.Run("nil module is rejected before anything registers", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		err := zenify.RegisterModules(context.Background(), scope, nil)
		assert.ErrorIs(t, err, zenify.ErrNilModule)
	})

	t.Run("empty module name is rejected", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })
		recorder := &testutil.CallRecorder{}

		unnamed := zenify.NewModule("", func(*zenify.Scope) error {
			recorder.Record("unnamed")
			return nil
		})

		err := zenify.RegisterModules(context.Background(), scope, unnamed)
		assert.ErrorIs(t, err, zenify.ErrEmptyModuleName)
		assert.Equal(t, 0, recorder.Count())
	})
}

func TestRegisterModules_CycleDetection(t *testing.T) {
	t.Parallel()

	scope := zenify.NewScope("test")
	t.Cleanup(func() { require.NoError(t, scope.Close()) })
	recorder := &testutil.CallRecorder{}

	// Mutual dependency needs a late-bound edge; builtModule dependencies
	// are fixed at construction, so use for the cycle a pair of hand-rolled
	// modules pointing at each other.
	m1 := &cyclicModule{name: "m1", recorder: recorder}
	m2 := &cyclicModule{name: "m2", recorder: recorder}
	m1.dep = m2
	m2.dep = m1

	err := zenify.RegisterModules(context.Background(), scope, m1)
	require.Error(t, err)

	var cycleErr *zenify.ModuleCycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, 0, recorder.Count(), "no module may register once a cycle is found")
}

type cyclicModule struct {
	name     string
	dep      zenify.Module
	recorder *testutil.CallRecorder
}

func (m *cyclicModule) Name() string                  { return m.name }
func (m *cyclicModule) Dependencies() []zenify.Module { return []zenify.Module{m.dep} }
func (m *cyclicModule) Register(*zenify.Scope) error  { m.recorder.Record(m.name); return nil }

func TestRegisterModules_FailFast(t *testing.T) {
	t.Run("register error surfaces unmodified and aborts", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })
		recorder := &testutil.CallRecorder{}

		registerErr := errors.New("register failure")
		failing := zenify.NewModule("failing", func(*zenify.Scope) error {
			return registerErr
		})
		dependent := zenify.NewModule("dependent", func(*zenify.Scope) error {
			recorder.Record("dependent")
			return nil
		}, zenify.DependsOnModules(failing))

		err := zenify.RegisterModules(context.Background(), scope, dependent)
		assert.Same(t, registerErr, err, "error must not be wrapped")
		assert.Equal(t, 0, recorder.Count())
	})

	t.Run("on-init error surfaces unmodified", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		initErr := errors.New("init failure")
		m := zenify.NewModule("failing-init",
			func(*zenify.Scope) error { return nil },
			zenify.OnInit(func(context.Context, *zenify.Scope) error { return initErr }),
		)

		err := zenify.RegisterModules(context.Background(), scope, m)
		assert.Same(t, initErr, err)
	})

	t.Run("failed module can retry because it was never marked loaded", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		attempts := 0
		flaky := zenify.NewModule("flaky", func(*zenify.Scope) error {
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
			return nil
		})

		require.Error(t, zenify.RegisterModules(context.Background(), scope, flaky))
		require.NoError(t, zenify.RegisterModules(context.Background(), scope, flaky))
		assert.Equal(t, 2, attempts)
	})
}

func TestRegisterModules_Hooks(t *testing.T) {
	t.Run("on-init runs after register in load order", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		t.Cleanup(func() { require.NoError(t, scope.Close()) })
		recorder := &testutil.CallRecorder{}

		base := zenify.NewModule("base",
			func(*zenify.Scope) error { recorder.Record("base.register"); return nil },
			zenify.OnInit(func(context.Context, *zenify.Scope) error {
				recorder.Record("base.init")
				return nil
			}),
		)
		app := zenify.NewModule("app",
			func(*zenify.Scope) error { recorder.Record("app.register"); return nil },
			zenify.OnInit(func(context.Context, *zenify.Scope) error {
				recorder.Record("app.init")
				return nil
			}),
			zenify.DependsOnModules(base),
		)

		require.NoError(t, zenify.RegisterModules(context.Background(), scope, app))
		assert.Equal(t, []string{
			"base.register", "base.init",
			"app.register", "app.init",
		}, recorder.Calls())
	})

	t.Run("on-dispose runs at scope disposal in reverse load order", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		recorder := &testutil.CallRecorder{}

		base := zenify.NewModule("base",
			func(*zenify.Scope) error { return nil },
			zenify.OnDispose(func(*zenify.Scope) error {
				recorder.Record("base.dispose")
				return nil
			}),
		)
		app := zenify.NewModule("app",
			func(*zenify.Scope) error { return nil },
			zenify.OnDispose(func(*zenify.Scope) error {
				recorder.Record("app.dispose")
				return nil
			}),
			zenify.DependsOnModules(base),
		)

		require.NoError(t, zenify.RegisterModules(context.Background(), scope, app))
		require.NoError(t, scope.Close())

		assert.Equal(t, []string{"app.dispose", "base.dispose"}, recorder.Calls())
	})

	t.Run("on-dispose failure is collected, not fatal", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		recorder := &testutil.CallRecorder{}

		disposeErr := errors.New("dispose failure")
		bad := zenify.NewModule("bad",
			func(*zenify.Scope) error { return nil },
			zenify.OnDispose(func(*zenify.Scope) error { return disposeErr }),
		)
		good := zenify.NewModule("good",
			func(*zenify.Scope) error { return nil },
			zenify.OnDispose(func(*zenify.Scope) error {
				recorder.Record("good.dispose")
				return nil
			}),
			zenify.DependsOnModules(bad),
		)

		require.NoError(t, zenify.RegisterModules(context.Background(), scope, good))

		err := scope.Close()
		require.Error(t, err)
		assert.ErrorIs(t, err, disposeErr)
		assert.Equal(t, []string{"good.dispose"}, recorder.Calls())
	})

	t.Run("register modules on a disposed scope fails", func(t *testing.T) {
		t.Parallel()

		scope := zenify.NewScope("test")
		require.NoError(t, scope.Close())

		m := zenify.NewModule("late", func(*zenify.Scope) error { return nil })
		err := zenify.RegisterModules(context.Background(), scope, m)
		assert.ErrorIs(t, err, zenify.ErrScopeDisposed)
	})
}
