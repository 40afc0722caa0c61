package zenify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sdegenaar/zenify"
	"github.com/sdegenaar/zenify/internal/testutil"
)

func TestScopeManager_Creation(t *testing.T) {
	t.Parallel()

	manager := zenify.NewScopeManager(zenify.WithManagerLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { require.NoError(t, manager.Close()) })

	root := manager.RootScope()
	require.NotNil(t, root)
	assert.Equal(t, "root", root.Name())
	assert.Nil(t, root.Parent())
	assert.Equal(t, root, manager.CurrentScope())
	assert.NotNil(t, manager.Hub())
}

func TestScopeManager_CreateScope(t *testing.T) {
	t.Run("default parent is the current scope", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		scope, err := manager.CreateScope("session")
		require.NoError(t, err)
		assert.Equal(t, manager.RootScope(), scope.Parent())
	})

	t.Run("explicit parent overrides the cursor", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		parent, err := manager.CreateScope("parent")
		require.NoError(t, err)

		child, err := manager.CreateScope("child", zenify.WithParent(parent))
		require.NoError(t, err)
		assert.Equal(t, parent, child.Parent())
	})

	t.Run("live names are unique", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		_, err := manager.CreateScope("session")
		require.NoError(t, err)

		_, err = manager.CreateScope("session")
		assert.ErrorIs(t, err, zenify.ErrScopeNameInUse)
	})

	t.Run("a disposed scope frees its name", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		first, err := manager.CreateScope("session")
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second, err := manager.CreateScope("session")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID(), second.ID())
	})

	t.Run("closed manager refuses new scopes", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		require.NoError(t, manager.Close())

		_, err := manager.CreateScope("late")
		assert.ErrorIs(t, err, zenify.ErrManagerClosed)
	})
}

func TestScopeManager_Lookups(t *testing.T) {
	t.Run("by name and by id", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		scope, err := manager.CreateScope("session")
		require.NoError(t, err)

		byName, ok := manager.ScopeByName("session")
		require.True(t, ok)
		assert.Equal(t, scope.ID(), byName.ID())

		byID, ok := manager.ScopeByID(scope.ID())
		require.True(t, ok)
		assert.Equal(t, scope.ID(), byID.ID())
	})

	t.Run("disposed scopes are invisible", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		scope, err := manager.CreateScope("session")
		require.NoError(t, err)
		id := scope.ID()
		require.NoError(t, scope.Close())

		_, ok := manager.ScopeByName("session")
		assert.False(t, ok)
		_, ok = manager.ScopeByID(id)
		assert.False(t, ok)
	})
}

func TestScopeManager_RunInScope(t *testing.T) {
	t.Run("cursor swaps and restores", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		scope, err := manager.CreateScope("session")
		require.NoError(t, err)

		manager.RunInScope(scope, func() {
			assert.Equal(t, scope, manager.CurrentScope())
		})

		assert.Equal(t, manager.RootScope(), manager.CurrentScope())
	})

	t.Run("cursor restores after a panic", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		scope, err := manager.CreateScope("session")
		require.NoError(t, err)

		assert.Panics(t, func() {
			manager.RunInScope(scope, func() { panic("boom") })
		})
		assert.Equal(t, manager.RootScope(), manager.CurrentScope())
	})

	t.Run("nested sessions unwind in order", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		outer, err := manager.CreateScope("outer")
		require.NoError(t, err)
		inner, err := manager.CreateScope("inner")
		require.NoError(t, err)

		manager.RunInScope(outer, func() {
			manager.RunInScope(inner, func() {
				assert.Equal(t, inner, manager.CurrentScope())
			})
			assert.Equal(t, outer, manager.CurrentScope())
		})
		assert.Equal(t, manager.RootScope(), manager.CurrentScope())
	})

	t.Run("cursor falls back to root when a session scope disposes", func(t *testing.T) {
		t.Parallel()

		manager := zenify.NewScopeManager()
		t.Cleanup(func() { require.NoError(t, manager.Close()) })

		scope, err := manager.CreateScope("session")
		require.NoError(t, err)

		manager.RunInScope(scope, func() {
			require.NoError(t, scope.Close())
		})
		assert.Equal(t, manager.RootScope(), manager.CurrentScope())
	})
}

func TestScopeManager_Close(t *testing.T) {
	t.Parallel()

	manager := zenify.NewScopeManager()

	scope, err := manager.CreateScope("session")
	require.NoError(t, err)

	d := &testutil.TrackingDisposable{}
	require.NoError(t, zenify.Put(scope, d))

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "close must be idempotent")

	assert.True(t, manager.RootScope().IsDisposed())
	assert.True(t, scope.IsDisposed())
	assert.Equal(t, 1, d.CloseCount())
}

func TestScopeManager_HubResolvesThroughCurrentScope(t *testing.T) {
	t.Parallel()

	manager := zenify.NewScopeManager()
	t.Cleanup(func() { require.NoError(t, manager.Close()) })

	svc := &testutil.TestService{ID: "bound"}
	require.NoError(t, zenify.Put(manager.RootScope(), svc))

	var observed []any
	sub := manager.Hub().Listen(zenify.KeyOf[*testutil.TestService](), func(v any) {
		observed = append(observed, v)
	})
	t.Cleanup(func() { require.NoError(t, sub.Close()) })

	require.Len(t, observed, 1, "listener runs once at subscription")
	assert.Same(t, svc, observed[0])

	manager.Hub().NotifyListeners(zenify.KeyOf[*testutil.TestService]())
	require.Len(t, observed, 2)
	assert.Same(t, svc, observed[1])
}
