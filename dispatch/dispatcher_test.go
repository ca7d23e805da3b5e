package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/engine"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManual(t *testing.T) (*engine.Simulator, *Dispatcher) {
	t.Helper()
	sim := engine.NewSimulator(func(o *engine.SimulatorOptions) { o.Manual = true })
	d := New(sim)
	sim.OnEvent(func(ev core.Event) {
		if resp, ok := ev.(*core.Response); ok {
			d.Resolve(resp)
		}
	})
	return sim, d
}

func TestIssue_EngineUnavailable(t *testing.T) {
	d := New(nil)
	op, err := d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	assert.Nil(t, op)
	assert.True(t, core.IsEngineUnavailable(err))

	sim := engine.NewSimulator(func(o *engine.SimulatorOptions) { o.NotReady = true })
	d = New(sim)
	assert.False(t, d.Ready())
	_, err = d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	require.Error(t, err)
	var unavailable *core.EngineUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 0, sim.SentCount())
}

func TestIssue_SendsExactlyOneAndResolves(t *testing.T) {
	sim, d := newManual(t)

	var calls int
	op, err := d.Issue(&core.LogoutRequest{Account: "a"}, nil, func(*core.Operation) { calls++ })
	require.NoError(t, err)
	require.Equal(t, 1, sim.SentCount())
	assert.Equal(t, 1, d.Pending())
	assert.False(t, op.IsCompleted())

	req := sim.LastSent()
	assert.NotEmpty(t, req.RequestID())

	sim.Respond(req, 0, 0)
	sim.Flush()

	assert.True(t, op.IsCompleted())
	assert.False(t, op.CompletedSynchronously())
	assert.NoError(t, op.CheckForError())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.Pending())
}

func TestIssue_EngineFailureSurfacesAsOperationFailed(t *testing.T) {
	sim, d := newManual(t)

	op, err := d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	require.NoError(t, err)

	sim.Respond(sim.LastSent(), 1, core.StatusAccessDenied)
	sim.Flush()

	err = op.CheckForError()
	require.Error(t, err)
	assert.True(t, core.IsOperationFailed(err))
	assert.True(t, core.IsEngineStatus(err, core.StatusAccessDenied))
}

func TestIssue_SendFailureCompletesImmediately(t *testing.T) {
	sim, d := newManual(t)
	sendErr := errors.New("pipe closed")
	sim.SetSendError(sendErr)

	op, err := d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.True(t, op.IsCompleted())
	assert.ErrorIs(t, op.CheckForError(), sendErr)
	assert.Equal(t, 0, d.Pending())
}

func TestResolve_HandlerDecidesOutcome(t *testing.T) {
	sim, d := newManual(t)

	var seen *core.Response
	handlerErr := errors.New("payload rejected")
	op, err := d.Issue(&core.GetDevicesRequest{Direction: core.DeviceOutput}, func(resp *core.Response) error {
		seen = resp
		return handlerErr
	}, nil)
	require.NoError(t, err)

	sim.Emit(&core.Response{RequestID: sim.LastSent().RequestID(), RequestType: core.ReqGetDevices, Devices: []core.AudioDevice{{ID: "x"}}})
	sim.Flush()

	require.NotNil(t, seen)
	assert.ErrorIs(t, op.CheckForError(), handlerErr)
	assert.Equal(t, []core.AudioDevice{{ID: "x"}}, op.Result())
}

func TestResolve_HandlerPanicBecomesError(t *testing.T) {
	sim, d := newManual(t)

	op, err := d.Issue(&core.LogoutRequest{Account: "a"}, func(*core.Response) error { panic("boom") }, nil)
	require.NoError(t, err)

	sim.Respond(sim.LastSent(), 0, 0)
	sim.Flush()

	require.Error(t, op.Err())
	assert.Contains(t, op.Err().Error(), "panicked")
}

type requestRecorder struct {
	logging.NoOpLogger
	outcomes []error
	types    []string
}

func (r *requestRecorder) LogRequest(requestType, _ string, dur time.Duration, err error) {
	r.types = append(r.types, requestType)
	r.outcomes = append(r.outcomes, err)
}

func TestResolve_LogsOutcomeThroughRequestLogger(t *testing.T) {
	rec := &requestRecorder{}
	sim := engine.NewSimulator(func(o *engine.SimulatorOptions) { o.Manual = true })
	d := New(sim, func(o *Options) { o.Logger = rec })
	sim.OnEvent(func(ev core.Event) {
		if resp, ok := ev.(*core.Response); ok {
			d.Resolve(resp)
		}
	})

	_, err := d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	require.NoError(t, err)
	sim.Respond(sim.LastSent(), 0, 0)
	_, err = d.Issue(&core.LogoutRequest{Account: "b"}, nil, nil)
	require.NoError(t, err)
	sim.Respond(sim.LastSent(), 1, core.StatusTimeout)
	sim.Flush()

	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, []string{string(core.ReqLogout), string(core.ReqLogout)}, rec.types)
	assert.NoError(t, rec.outcomes[0])
	assert.True(t, core.IsEngineStatus(rec.outcomes[1], core.StatusTimeout))
}

func TestResolve_UnknownAndDuplicateResponsesDropped(t *testing.T) {
	sim, d := newManual(t)

	assert.False(t, d.Resolve(&core.Response{RequestID: "nope"}))

	op, err := d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	require.NoError(t, err)
	req := sim.LastSent()

	assert.True(t, d.Resolve(&core.Response{RequestID: req.RequestID()}))
	assert.False(t, d.Resolve(&core.Response{RequestID: req.RequestID(), ReturnCode: 1}))
	assert.NoError(t, op.CheckForError())
}

func TestAbandon(t *testing.T) {
	_, d := newManual(t)

	op1, _ := d.Issue(&core.LogoutRequest{Account: "a"}, nil, nil)
	op2, _ := d.Issue(&core.LogoutRequest{Account: "b"}, nil, nil)

	shutdown := errors.New("engine shut down")
	assert.Equal(t, 2, d.Abandon(shutdown))
	assert.ErrorIs(t, op1.CheckForError(), shutdown)
	assert.ErrorIs(t, op2.CheckForError(), shutdown)
	assert.Equal(t, 0, d.Pending())
}
