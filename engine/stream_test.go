package engine

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vxbroker/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitEvent(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEnvelope_Request(t *testing.T) {
	req := &core.AccountArchiveQueryRequest{Account: "alice", QueryID: "q1", Params: core.ArchiveQueryParams{Max: 10, With: "sip:bob"}}
	req.SetRequestID("r1")

	env, err := EncodeRequest(req)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, env.Kind)
	assert.Equal(t, string(core.ReqAccountArchiveQuery), env.Type)

	got, err := env.Request()
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = env.Event()
	assert.Error(t, err)
}

func TestEnvelope_EventWithEmbeddedSummary(t *testing.T) {
	ev := &core.AccountArchiveQueryEndEvent{
		Account:         "alice",
		ArchiveQueryEnd: core.ArchiveQueryEnd{QueryID: "q1", FirstID: "m1", LastID: "m3", TotalCount: 3},
	}
	env, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := env.Event()
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestEnvelope_UnknownType(t *testing.T) {
	_, err := Envelope{Kind: KindEvent, Type: "evt_bogus"}.Event()
	assert.ErrorContains(t, err, "unknown event type")

	_, err = Envelope{Kind: KindRequest, Type: "req_bogus"}.Request()
	assert.ErrorContains(t, err, "unknown request type")
}

type pair struct {
	sim    *Simulator
	stream *Stream
	events chan core.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
	served chan error
}

func newPair(t *testing.T, optFns ...func(o *SimulatorOptions)) *pair {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	p := &pair{
		sim:    NewSimulator(optFns...),
		events: make(chan core.Event, 32),
		cancel: cancel,
		served: make(chan error, 1),
	}
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		_ = p.sim.Run(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.served <- Serve(server, p.sim, nil)
	}()

	p.stream = NewStream(client)
	p.stream.OnEvent(func(ev core.Event) { p.events <- ev })
	return p
}

func (p *pair) shutdown(t *testing.T) {
	t.Helper()
	require.NoError(t, p.stream.Close())
	p.cancel()
	p.wg.Wait()
	assert.NoError(t, <-p.served)
}

func TestStream_EndToEndWithSimulator(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	p := newPair(t)

	req := &core.LoginRequest{Account: "alice", Server: "https://voice.example", Token: "t"}
	req.SetRequestID("r1")
	require.True(t, p.stream.Ready())
	require.NoError(t, p.stream.Send(req))

	resp, ok := waitEvent(t, p.events).(*core.Response)
	require.True(t, ok)
	assert.Equal(t, core.RequestID("r1"), resp.RequestID)
	assert.Equal(t, core.ReqLogin, resp.RequestType)
	assert.False(t, resp.Failed())

	lsc, ok := waitEvent(t, p.events).(*core.LoginStateChangedEvent)
	require.True(t, ok)
	assert.Equal(t, core.AccountHandle("alice"), lsc.Account)
	assert.Equal(t, core.LoggedIn, lsc.State)

	p.shutdown(t)
	assert.False(t, p.stream.Ready())
	assert.NoError(t, p.stream.Err())
}

func TestStream_RejectedRequestAnsweredWithFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	p := newPair(t, func(o *SimulatorOptions) { o.NotReady = true })

	req := &core.LogoutRequest{Account: "alice"}
	req.SetRequestID("r2")
	require.NoError(t, p.stream.Send(req))

	resp, ok := waitEvent(t, p.events).(*core.Response)
	require.True(t, ok)
	assert.Equal(t, core.RequestID("r2"), resp.RequestID)
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.StatusText, "not initialized")

	p.shutdown(t)
}

func TestStream_SendAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := net.Pipe()
	defer server.Close()

	st := NewStream(client)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	err := st.Send(&core.LogoutRequest{Account: "alice"})
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.False(t, st.Ready())
}

func TestStream_PeerHangUp(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := net.Pipe()

	st := NewStream(client)
	st.OnEvent(func(core.Event) {})
	require.NoError(t, server.Close())

	select {
	case <-st.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not exit")
	}
	assert.False(t, st.Ready())
	assert.NoError(t, st.Err())
	require.NoError(t, st.Close())
}

func TestServe_LocalCloseOfTCPConn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	conn, err := ln.Accept()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- Serve(conn, NewSimulator(), nil) }()
	require.NoError(t, conn.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestStream_SkipsUndecodableFrames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client, server := net.Pipe()

	st := NewStream(client)
	events := make(chan core.Event, 4)
	st.OnEvent(func(ev core.Event) { events <- ev })

	good, err := EncodeEvent(&core.SessionRemovedEvent{Session: "s1"})
	require.NoError(t, err)

	enc := NewEncoder(server)
	require.NoError(t, enc.Encode(Envelope{Kind: KindEvent, Type: "evt_bogus"}))
	require.NoError(t, enc.Encode(good))

	ev, ok := waitEvent(t, events).(*core.SessionRemovedEvent)
	require.True(t, ok)
	assert.Equal(t, core.SessionHandle("s1"), ev.Session)

	require.NoError(t, st.Close())
	require.NoError(t, server.Close())
}
