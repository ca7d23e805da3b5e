package session

import (
	"testing"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	h := testutil.NewHarnessBuilder().Build()
	r := NewRegistry(h.Dispatcher, h.Router, func(o *Options) { o.DisplayName = "Alice" })

	a, err := r.Get("alice")
	require.NoError(t, err)
	again, err := r.Get("alice")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = r.Get("")
	assert.True(t, core.IsArgumentError(err))

	_, err = r.Get("bob")
	require.NoError(t, err)
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, core.AccountHandle("alice"), list[0].Account())

	_, err = a.BeginLogin("vx.example.com", "token", nil)
	require.NoError(t, err)
	req := h.Sim.LastSent().(*core.LoginRequest)
	assert.Equal(t, "Alice", req.DisplayName)

	require.NoError(t, r.Delete("alice"))
	assert.ErrorIs(t, r.Delete("alice"), core.ErrNotFound)
	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.False(t, h.Router.Registered(core.AccountRoute("alice")))

	r.Close()
	assert.Empty(t, r.List())
	assert.Equal(t, 0, h.Router.Len())
}

func TestRegistry_DirectDeleteForgetsSession(t *testing.T) {
	h := testutil.NewHarnessBuilder().Build()
	r := NewRegistry(h.Dispatcher, h.Router)

	a, err := r.Get("alice")
	require.NoError(t, err)
	a.Delete()

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.Empty(t, r.List())

	fresh, err := r.Get("alice")
	require.NoError(t, err)
	assert.NotSame(t, a, fresh)
	_, err = fresh.BeginLogin("vx.example.com", "token", nil)
	require.NoError(t, err)
	h.Flush()
	assert.Equal(t, core.LoggedIn, fresh.State())

	// A stale session must not evict its replacement.
	a.Delete()
	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}
