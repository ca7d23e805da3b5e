package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"

	"github.com/hupe1980/vxbroker/engine"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulator to remote brokers over a CBOR stream",
		Long:  "serve listens on a TCP address (--listen, else engine.address) and runs one simulator per connection. Point another vxsim at it with engine.address.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			if listen == "" {
				listen = a.cfg.Engine.Address
			}
			if listen == "" {
				return errors.New("no listen address: set --listen or engine.address")
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "serving simulator on %s\n", ln.Addr())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			return serveSimulator(ctx, ln, a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "TCP address to listen on")
	return cmd
}

// serveSimulator accepts connections on ln until ctx ends. Each connection
// gets its own simulator. The listener is closed on return.
func serveSimulator(ctx context.Context, ln net.Listener, a *app) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer func() { _ = ln.Close() }()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		a.logger.Info("engine client connected", "remote", conn.RemoteAddr().String())

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, a)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, a *app) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sim := newSimulator(a)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		_ = sim.Run(ctx)
	}()
	defer func() { <-simDone }()
	defer cancel()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	if err := engine.Serve(conn, sim, a.logger); err != nil {
		a.logger.Error("serve ended", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	a.logger.Info("engine client disconnected", "remote", conn.RemoteAddr().String())
}
