package vxbroker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vxbroker/config"
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBroker_UnbufferedScenario(t *testing.T) {
	sim := engine.NewSimulator()
	b := New(sim, func(o *Options) { o.DisplayName = "Alice" })
	require.True(t, b.Ready())

	ls, err := b.LoginSession("alice")
	require.NoError(t, err)
	_, err = ls.BeginLogin("https://voice.example.com", "token", nil)
	require.NoError(t, err)
	assert.Equal(t, core.LoggingIn, ls.State())
	sim.Flush()
	assert.Equal(t, core.LoggedIn, ls.State())

	login := sim.Sent()[0].(*core.LoginRequest)
	assert.Equal(t, "Alice", login.DisplayName)

	cs, err := ls.ChannelSession("lobby")
	require.NoError(t, err)
	_, err = cs.BeginConnect(true, true, true, "token", nil)
	require.NoError(t, err)
	sim.Flush()
	assert.Equal(t, core.Connected, cs.ChannelState())
	assert.Len(t, cs.Participants(), 1)

	var sent *core.Operation
	_, err = cs.BeginSendText("hello", func(op *core.Operation) { sent = op })
	require.NoError(t, err)
	sim.Flush()
	require.NotNil(t, sent)
	assert.NoError(t, sent.CheckForError())
	require.Len(t, cs.Messages(), 1)
	assert.Equal(t, "hello", cs.Messages()[0].Body)

	before := sim.SentCount()
	require.NoError(t, b.Close())
	assert.Equal(t, before+1, sim.SentCount())
	assert.IsType(t, &core.LogoutRequest{}, sim.LastSent())
	assert.Equal(t, 0, b.Router().Len())
}

func TestBroker_BufferedRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sim := engine.NewSimulator()
	b := New(sim, WithConfig(config.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = sim.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = b.Run(ctx)
	}()

	ls, err := b.LoginSession("alice")
	require.NoError(t, err)

	done := make(chan error, 1)
	_, err = ls.BeginLogin("https://voice.example.com", "token", func(op *core.Operation) {
		done <- op.Err()
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not complete")
	}

	require.Eventually(t, func() bool { return ls.State() == core.LoggedIn }, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	require.NoError(t, b.Close())
}

func TestBroker_NilEngine(t *testing.T) {
	b := New(nil)
	assert.False(t, b.Ready())

	ls, err := b.LoginSession("alice")
	require.NoError(t, err)

	op, err := ls.BeginLogin("https://voice.example.com", "token", nil)
	assert.Nil(t, op)
	assert.True(t, core.IsEngineUnavailable(err))
	assert.Equal(t, core.LoggedOut, ls.State())
}

func TestBroker_AudioDevices(t *testing.T) {
	sim := engine.NewSimulator()
	b := New(sim)

	out := b.AudioOutputDevices()
	assert.Same(t, out, b.AudioOutputDevices())
	assert.NotSame(t, out, b.AudioInputDevices())

	_, err := out.BeginRefresh(nil)
	require.NoError(t, err)
	sim.Flush()

	assert.Len(t, out.Devices(), 2)
	assert.Equal(t, "default-out", out.ActiveDevice())
	assert.Empty(t, b.AudioInputDevices().Devices())
}

func TestBroker_CloseAbandonsPending(t *testing.T) {
	sim := engine.NewSimulator(func(o *engine.SimulatorOptions) { o.Manual = true })
	b := New(sim)

	ls, err := b.LoginSession("alice")
	require.NoError(t, err)

	var completed *core.Operation
	_, err = ls.BeginLogin("https://voice.example.com", "token", func(op *core.Operation) { completed = op })
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NotNil(t, completed)
	assert.ErrorIs(t, completed.Err(), ErrClosed)
	assert.Equal(t, 0, b.Dispatcher().Pending())

	_, err = b.LoginSession("bob")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, b.Close())
}

func TestBroker_DeleteLoginSession(t *testing.T) {
	b := New(engine.NewSimulator())

	first, err := b.LoginSession("alice")
	require.NoError(t, err)
	require.Len(t, b.LoginSessions(), 1)

	require.NoError(t, b.DeleteLoginSession("alice"))
	assert.Empty(t, b.LoginSessions())
	assert.ErrorIs(t, b.DeleteLoginSession("alice"), core.ErrNotFound)

	second, err := b.LoginSession("alice")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
