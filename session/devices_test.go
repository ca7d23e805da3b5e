package session

import (
	"testing"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioDevices_Refresh(t *testing.T) {
	h := testutil.NewHarnessBuilder().Build()
	d := NewAudioDevices(core.DeviceOutput, h.Dispatcher, h.Router)
	rec := &testutil.ChangeRecorder{}
	d.Subscribe(rec.Record)

	assert.Empty(t, d.Devices())

	op, err := d.BeginRefresh(nil)
	require.NoError(t, err)
	h.Flush()

	require.NoError(t, op.CheckForError())
	assert.Len(t, d.Devices(), 2)
	assert.Equal(t, "default-out", d.ActiveDevice())
	assert.Equal(t, []core.Field{core.FieldDevices, core.FieldActiveDevice}, rec.Fields())
	assert.Equal(t, d.Devices(), op.Result())
}

func TestAudioDevices_SetActiveDevice(t *testing.T) {
	h := testutil.NewHarnessBuilder().Build()
	d := NewAudioDevices(core.DeviceInput, h.Dispatcher, h.Router)
	_, err := d.BeginRefresh(nil)
	require.NoError(t, err)
	h.Flush()
	sent := h.Sim.SentCount()

	op, err := d.BeginSetActiveDevice("default-in", nil)
	require.NoError(t, err)
	assert.True(t, op.CompletedSynchronously())
	assert.Equal(t, sent, h.Sim.SentCount())

	_, err = d.BeginSetActiveDevice("nope", nil)
	assert.True(t, core.IsArgumentError(err))
	_, err = d.BeginSetActiveDevice("", nil)
	assert.True(t, core.IsArgumentError(err))

	op, err = d.BeginSetActiveDevice("usb-headset-in", nil)
	require.NoError(t, err)
	h.Flush()
	require.NoError(t, op.CheckForError())
	assert.Equal(t, "usb-headset-in", d.ActiveDevice())
}

func TestAudioDevices_HotSwapAndDirections(t *testing.T) {
	h := testutil.NewHarnessBuilder().Build()
	in := NewAudioDevices(core.DeviceInput, h.Dispatcher, h.Router)
	out := NewAudioDevices(core.DeviceOutput, h.Dispatcher, h.Router)

	h.Sim.Emit(&core.DevicesChangedEvent{
		Direction:    core.DeviceOutput,
		Devices:      []core.AudioDevice{{ID: "bt", Name: "Bluetooth"}},
		ActiveDevice: "bt",
	})
	h.Flush()

	assert.Equal(t, "bt", out.ActiveDevice())
	assert.Empty(t, in.Devices())

	out.Delete()
	assert.False(t, h.Router.Registered(core.DeviceRoute(core.DeviceOutput)))
	assert.True(t, h.Router.Registered(core.DeviceRoute(core.DeviceInput)))
	assert.Empty(t, out.Devices())
}

func TestAudioDevices_FailedSelection(t *testing.T) {
	h := testutil.NewHarnessBuilder().Manual().Build()
	d := NewAudioDevices(core.DeviceOutput, h.Dispatcher, h.Router)

	// Without a loaded list the id is passed to the engine as is.
	op, err := d.BeginSetActiveDevice("ghost", nil)
	require.NoError(t, err)
	h.Sim.Respond(h.Sim.LastSent(), 1, 1001)
	h.Flush()

	assert.True(t, core.IsEngineStatus(op.CheckForError(), 1001))
	assert.Empty(t, d.ActiveDevice())
}
