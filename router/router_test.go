package router

import (
	"sync"
	"testing"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dropRecorder captures the structured drop records of the router.
type dropRecorder struct {
	logging.NoOpLogger
	reasons []string
	stacks  int
}

func (d *dropRecorder) LogEventDrop(_, _, reason string) { d.reasons = append(d.reasons, reason) }

func (d *dropRecorder) ErrorWithStack(error, string, ...any) { d.stacks++ }

// wrappedEvent satisfies core.Event without being one of the routed types.
type wrappedEvent struct{ *core.MessageReceivedEvent }

func dropped(evtType core.EventType, reason string) float64 {
	return testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues(string(evtType), reason))
}

type fakeSink struct {
	resolved []core.RequestID
}

func (f *fakeSink) Resolve(resp *core.Response) bool {
	f.resolved = append(f.resolved, resp.RequestID)
	return true
}

func TestDispatch_RoutesByKey(t *testing.T) {
	r := New(nil)

	var a, b []core.Event
	r.Register(core.SessionRoute("s1"), func(ev core.Event) { a = append(a, ev) })
	r.Register(core.SessionRoute("s2"), func(ev core.Event) { b = append(b, ev) })

	r.Dispatch(&core.MediaStreamUpdatedEvent{Session: "s1", State: core.Connected})
	r.Dispatch(&core.TextStreamUpdatedEvent{Session: "s2", State: core.Connected})
	r.Dispatch(&core.SessionRemovedEvent{Session: "s1"})

	require.Len(t, a, 2)
	require.Len(t, b, 1)
	assert.IsType(t, &core.SessionRemovedEvent{}, a[1])
}

func TestDispatch_AccountAndSessionNamespacesDoNotCollide(t *testing.T) {
	r := New(nil)

	var account, session int
	r.Register(core.AccountRoute("same"), func(core.Event) { account++ })
	r.Register(core.SessionRoute("same"), func(core.Event) { session++ })

	r.Dispatch(&core.LoginStateChangedEvent{Account: "same", State: core.LoggedIn})

	assert.Equal(t, 1, account)
	assert.Equal(t, 0, session)
}

func TestDispatch_UnmatchedEventsAreDropped(t *testing.T) {
	r := New(nil)
	assert.NotPanics(t, func() {
		r.Dispatch(&core.ParticipantAddedEvent{Session: "gone"})
		r.Dispatch(&core.DevicesChangedEvent{Direction: core.DeviceInput})
		r.Dispatch(nil)
	})
}

func TestDispatch_DropReasons(t *testing.T) {
	rec := &dropRecorder{}
	r := New(nil, func(o *Options) { o.Logger = rec })
	called := false
	r.Register(core.SessionRoute("s1"), func(core.Event) { called = true })

	noRoute := dropped(core.EvtParticipantAdded, metrics.ReasonNoRoute)
	unsupported := dropped(core.EvtMessageReceived, metrics.ReasonUnsupported)
	noSink := dropped(core.EvtResponse, metrics.ReasonNoSink)

	r.Dispatch(&core.ParticipantAddedEvent{Session: "gone"})
	r.Dispatch(wrappedEvent{&core.MessageReceivedEvent{Session: "s1"}})
	r.Dispatch(&core.Response{RequestID: "req-1"})

	assert.False(t, called)
	assert.Equal(t, []string{metrics.ReasonNoRoute, metrics.ReasonUnsupported, metrics.ReasonNoSink}, rec.reasons)
	assert.Equal(t, noRoute+1, dropped(core.EvtParticipantAdded, metrics.ReasonNoRoute))
	assert.Equal(t, unsupported+1, dropped(core.EvtMessageReceived, metrics.ReasonUnsupported))
	assert.Equal(t, noSink+1, dropped(core.EvtResponse, metrics.ReasonNoSink))
}

func TestDispatch_ResponsesGoToSink(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink)

	called := false
	r.Register(core.RouteKey{}, func(core.Event) { called = true })

	r.Dispatch(&core.Response{RequestID: "req-1"})

	assert.Equal(t, []core.RequestID{"req-1"}, sink.resolved)
	assert.False(t, called)
}

func TestRegister_UnregisterRemovesOnlyOwnRegistration(t *testing.T) {
	r := New(nil)
	key := core.SessionRoute("s1")

	var first, second int
	unregisterFirst := r.Register(key, func(core.Event) { first++ })
	r.Register(key, func(core.Event) { second++ })

	unregisterFirst()
	assert.True(t, r.Registered(key))

	r.Dispatch(&core.SessionRemovedEvent{Session: "s1"})
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	r.Unregister(key)
	assert.False(t, r.Registered(key))
	assert.Equal(t, 0, r.Len())
}

func TestDispatch_HandlerMayUnregisterItself(t *testing.T) {
	r := New(nil)
	key := core.SessionRoute("s1")

	var unregister func()
	calls := 0
	unregister = r.Register(key, func(core.Event) {
		calls++
		unregister()
	})

	r.Dispatch(&core.SessionRemovedEvent{Session: "s1"})
	r.Dispatch(&core.SessionRemovedEvent{Session: "s1"})

	assert.Equal(t, 1, calls)
	assert.False(t, r.Registered(key))
}

func TestDispatch_HandlerPanicIsContained(t *testing.T) {
	rec := &dropRecorder{}
	r := New(nil, func(o *Options) { o.Logger = rec })
	r.Register(core.SessionRoute("s1"), func(core.Event) { panic("boom") })

	assert.NotPanics(t, func() { r.Dispatch(&core.SessionRemovedEvent{Session: "s1"}) })
	assert.Equal(t, 1, rec.stacks)

	core.SetDebugRethrow(true)
	defer core.SetDebugRethrow(false)
	assert.Panics(t, func() { r.Dispatch(&core.SessionRemovedEvent{Session: "s1"}) })
}

func TestDispatch_SerializesConcurrentCallers(t *testing.T) {
	r := New(nil)

	var (
		inFlight int
		maxSeen  int
		total    int
	)
	r.Register(core.SessionRoute("s1"), func(core.Event) {
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		total++
		inFlight--
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Dispatch(&core.MessageReceivedEvent{Session: "s1"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 400, total)
}
