package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hupe1980/vxbroker"
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/engine"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/spf13/cobra"
)

type demoFlags struct {
	account core.AccountHandle
	channel core.ChannelID
	message string
	stream  bool
	timeout time.Duration
}

func newDemoCmd(a *app) *cobra.Command {
	var (
		f       demoFlags
		account string
		channel string
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted session scenario against the simulator or engine.address",
		Long:  "demo logs in, joins a channel, sends a message, queries the archive, refreshes devices, leaves and logs out, printing each step.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			f.account = core.AccountHandle(account)
			f.channel = core.ChannelID(channel)
			return runDemo(cmd.Context(), a, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&account, "account", "alice", "account handle to log in")
	cmd.Flags().StringVar(&channel, "channel", "lobby", "channel to join")
	cmd.Flags().StringVar(&f.message, "message", "hello from vxsim", "text message to send")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "reach the simulator through a CBOR stream instead of in process")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "overall scenario deadline")
	return cmd
}

func cannedArchive(now time.Time) []core.ArchiveMessage {
	bodies := []string{"are you there?", "standup in five", "joining now"}
	out := make([]core.ArchiveMessage, len(bodies))
	for i, body := range bodies {
		out[i] = core.ArchiveMessage{
			MessageID: fmt.Sprintf("m%d", i+1),
			Sender:    "sip:bob",
			Body:      body,
			Inbound:   true,
			Timestamp: now.Add(time.Duration(i-len(bodies)) * time.Minute),
		}
	}
	return out
}

// newSimulator builds the simulator behind the demo and the serve command.
func newSimulator(a *app) *engine.Simulator {
	return engine.NewSimulator(func(o *engine.SimulatorOptions) {
		o.NotReady = !a.cfg.Engine.Ready
		o.Archive = cannedArchive(time.Now())
		o.Logger = a.logger
	})
}

func runDemo(parent context.Context, a *app, f demoFlags, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	if f.stream && a.cfg.Engine.Address != "" {
		return fmt.Errorf("--stream cannot be combined with engine.address %s", a.cfg.Engine.Address)
	}
	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	core.SetDebugRethrow(a.cfg.Debug.Rethrow)
	defer core.SetDebugRethrow(false)

	var (
		wg  sync.WaitGroup
		eng core.Engine
	)
	defer wg.Wait()
	defer cancel()

	switch {
	case a.cfg.Engine.Address != "":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", a.cfg.Engine.Address)
		if err != nil {
			return fmt.Errorf("dial engine: %w", err)
		}
		st := engine.NewStream(conn, func(o *engine.StreamOptions) { o.Logger = a.logger })
		defer func() { _ = st.Close() }()
		eng = st
	case f.stream:
		sim := newSimulator(a)
		client, server := net.Pipe()
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sim.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			if err := engine.Serve(server, sim, a.logger); err != nil {
				a.logger.Error("serve ended", "error", err)
			}
		}()
		st := engine.NewStream(client, func(o *engine.StreamOptions) { o.Logger = a.logger })
		defer func() { _ = st.Close() }()
		eng = st
	default:
		sim := newSimulator(a)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sim.Run(ctx)
		}()
		eng = sim
	}

	b := vxbroker.New(eng, vxbroker.WithConfig(a.cfg), func(o *vxbroker.Options) {
		o.Logger = a.logger
		o.DisplayName = string(f.account)
	})
	defer func() { _ = b.Close() }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Run(ctx)
	}()

	s := &scenario{ctx: ctx, b: b, f: f, out: out, logger: a.logger, server: a.cfg.Server, pageSize: a.cfg.Archive.DefaultPageSize}
	return s.run()
}

type scenario struct {
	ctx      context.Context
	b        *vxbroker.Broker
	f        demoFlags
	out      io.Writer
	logger   logging.Logger
	server   string
	pageSize uint
}

func (s *scenario) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

// await starts one operation and waits for its callback.
func (s *scenario) await(step string, start func(cb core.Callback) (*core.Operation, error)) error {
	defer logging.StartTimer(s.logger, step)()
	done := make(chan error, 1)
	if _, err := start(func(op *core.Operation) { done <- op.Err() }); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("%s: %w", step, s.ctx.Err())
	}
}

// until blocks until cond holds, re-checking on every change notification.
func (s *scenario) until(step string, subscribe func(core.ChangeFunc) func(), cond func() bool) error {
	wake := make(chan struct{}, 1)
	cancel := subscribe(func(core.Change) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for !cond() {
		select {
		case <-wake:
		case <-s.ctx.Done():
			return fmt.Errorf("%s: %w", step, s.ctx.Err())
		}
	}
	return nil
}

func (s *scenario) run() error {
	ls, err := s.b.LoginSession(s.f.account)
	if err != nil {
		return err
	}

	if err := s.await("login", func(cb core.Callback) (*core.Operation, error) {
		return ls.BeginLogin(s.server, "demo-token", cb)
	}); err != nil {
		return err
	}
	if err := s.until("login state", ls.Subscribe, func() bool { return ls.State() == core.LoggedIn }); err != nil {
		return err
	}
	s.printf("logged in as %s on %s", ls.Account(), ls.Server())

	cs, err := ls.ChannelSession(s.f.channel)
	if err != nil {
		return err
	}
	if err := s.await("join", func(cb core.Callback) (*core.Operation, error) {
		return cs.BeginConnect(true, true, true, "demo-token", cb)
	}); err != nil {
		return err
	}
	if err := s.until("join state", cs.Subscribe, func() bool {
		return cs.ChannelState() == core.Connected && len(cs.Participants()) > 0
	}); err != nil {
		return err
	}
	s.printf("joined %s: audio=%s text=%s participants=%d", s.f.channel, cs.AudioState(), cs.TextState(), len(cs.Participants()))

	if err := s.await("send text", func(cb core.Callback) (*core.Operation, error) {
		return cs.BeginSendText(s.f.message, cb)
	}); err != nil {
		return err
	}
	if err := s.until("message echo", cs.Subscribe, func() bool { return len(cs.Messages()) > 0 }); err != nil {
		return err
	}
	s.printf("message: %s", cs.Messages()[0].Body)

	if err := s.await("archive query", func(cb core.Callback) (*core.Operation, error) {
		return ls.BeginAccountArchiveQuery(core.ArchiveQueryParams{Max: s.pageSize}, cb)
	}); err != nil {
		return err
	}
	if err := s.until("archive end", ls.Subscribe, func() bool {
		res, ok := ls.AccountArchiveResult()
		return ok && !res.Running
	}); err != nil {
		return err
	}
	res, _ := ls.AccountArchiveResult()
	s.printf("archive: %d messages (total %d)", len(ls.ArchiveMessages()), res.TotalCount)

	if err := s.await("presence", func(cb core.Callback) (*core.Operation, error) {
		return ls.BeginSetPresence(core.PresenceAvailable, "in a call", cb)
	}); err != nil {
		return err
	}
	status, _ := ls.Presence()
	s.printf("presence: %s", status)

	devices := s.b.AudioOutputDevices()
	if err := s.await("devices", devices.BeginRefresh); err != nil {
		return err
	}
	s.printf("output devices: %d (active %s)", len(devices.Devices()), devices.ActiveDevice())

	if err := s.await("leave", cs.BeginDisconnect); err != nil {
		return err
	}
	if err := s.until("leave state", cs.Subscribe, func() bool { return cs.ChannelState() == core.Disconnected }); err != nil {
		return err
	}
	s.printf("left %s", s.f.channel)

	if err := s.await("logout", ls.BeginLogout); err != nil {
		return err
	}
	if err := s.until("logout state", ls.Subscribe, func() bool { return ls.State() == core.LoggedOut }); err != nil {
		return err
	}
	s.printf("logged out")
	s.logger.Info("scenario complete", "account", string(s.f.account), "channel", string(s.f.channel))
	return nil
}
