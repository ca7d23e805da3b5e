package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/metrics"
)

// ErrStreamClosed is returned by Send after Close or after the peer hung up.
var ErrStreamClosed = errors.New("engine stream closed")

// StreamOptions configures a Stream.
type StreamOptions struct {
	Logger logging.Logger
}

// Stream is a core.Engine backed by an out-of-process engine reachable over
// conn. The reader goroutine starts with the first OnEvent call.
type Stream struct {
	conn   io.ReadWriteCloser
	logger logging.Logger

	encMu sync.Mutex
	enc   *cbor.Encoder

	mu      sync.Mutex
	handler core.EventHandler
	closed  bool
	err     error

	startOnce sync.Once
	started   bool
	done      chan struct{}
}

var _ core.Engine = (*Stream)(nil)

// NewStream wraps conn. The Stream owns conn and closes it on Close.
func NewStream(conn io.ReadWriteCloser, optFns ...func(o *StreamOptions)) *Stream {
	opts := StreamOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Stream{
		conn:   conn,
		logger: opts.Logger,
		enc:    NewEncoder(conn),
		done:   make(chan struct{}),
	}
}

// Ready implements core.Engine.
func (s *Stream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Send implements core.Engine. Writes are serialized; a write error closes
// the stream.
func (s *Stream) Send(req core.Request) error {
	if !s.Ready() {
		return ErrStreamClosed
	}
	env, err := EncodeRequest(req)
	if err != nil {
		return err
	}

	s.encMu.Lock()
	err = s.enc.Encode(env)
	s.encMu.Unlock()

	if err != nil {
		s.fail(fmt.Errorf("write %s: %w", req.RequestType(), err))
		return err
	}
	return nil
}

// OnEvent implements core.Engine and starts the reader on first use.
func (s *Stream) OnEvent(h core.EventHandler) {
	s.mu.Lock()
	s.handler = h
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.readLoop()
	})
}

// Done is closed when the reader goroutine has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the error that terminated the stream, or nil after a clean
// shutdown.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the connection and waits for the reader to exit. It is
// idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wait()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	s.wait()
	return err
}

func (s *Stream) wait() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()

	s.logger.Error("engine stream failed", "error", err)
	_ = s.conn.Close()
}

func (s *Stream) readLoop() {
	defer close(s.done)

	dec := NewDecoder(s.conn)
	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) || !s.Ready() {
				s.mu.Lock()
				s.closed = true
				s.mu.Unlock()
				return
			}
			s.fail(fmt.Errorf("read: %w", err))
			return
		}

		ev, err := env.Event()
		if err != nil {
			metrics.IncEventDropped(env.Type, metrics.ReasonDecode)
			s.logger.Warn("dropping undecodable frame", "type", env.Type, "error", err)
			continue
		}

		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h(ev)
		}
	}
}
