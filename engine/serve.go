package engine

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
)

// Serve exposes eng to a Stream peer over conn until the peer hangs up. It
// installs its own handler on eng. Requests eng rejects synchronously are
// answered with a failed Response so the peer's operation completes.
func Serve(conn io.ReadWriter, eng core.Engine, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	var encMu sync.Mutex
	enc := NewEncoder(conn)
	write := func(ev core.Event) {
		env, err := EncodeEvent(ev)
		if err != nil {
			logger.Error("encode event", "error", err)
			return
		}
		encMu.Lock()
		defer encMu.Unlock()
		if err := enc.Encode(env); err != nil {
			logger.Debug("peer gone, event discarded", "event_type", ev.EventType(), "error", err)
		}
	}
	eng.OnEvent(write)
	defer eng.OnEvent(nil)

	dec := NewDecoder(conn)
	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		req, err := env.Request()
		if err != nil {
			logger.Warn("dropping undecodable request", "type", env.Type, "error", err)
			continue
		}

		if err := eng.Send(req); err != nil {
			write(&core.Response{
				RequestID:   req.RequestID(),
				RequestType: req.RequestType(),
				ReturnCode:  1,
				StatusText:  err.Error(),
			})
		}
	}
}
