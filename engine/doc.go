// Package engine provides concrete core.Engine implementations that sit
// between the broker and an actual voice engine.
//
// The broker never talks to a voice engine directly; it consumes the narrow
// core.Engine contract (Ready, Send, OnEvent). This package supplies the two
// bridges a host normally needs:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                 vxbroker (dispatch / router)             │
//	├──────────────────────────────────────────────────────────┤
//	│                     core.Engine                          │
//	│   ┌──────────────────────┐   ┌────────────────────────┐  │
//	│   │      Simulator       │   │        Stream          │  │
//	│   │  in-process, scripted│   │ CBOR frames over an    │  │
//	│   │  responses & events  │   │ io.ReadWriteCloser     │  │
//	│   └──────────────────────┘   └────────────────────────┘  │
//	└──────────────────────────────────────────────────────────┘
//
// # Simulator
//
// Simulator is an in-process engine for tests, demos and local development.
// It records every request, and in automatic mode answers each one with the
// response and event sequence a real engine would produce (login state
// changes, stream updates, participant joins, archive pages ...). In manual
// mode nothing is generated: tests script responses with Respond and events
// with Emit.
//
// Generated messages are queued, never delivered from inside Send. They reach
// the handler when Flush is called (deterministic tests) or from the Run loop
// (demos), always one at a time and in order.
//
// # Stream
//
// Stream bridges to an out-of-process engine (a sidecar wrapping the native
// SDK) over any io.ReadWriteCloser. Requests and events travel as
// a CBOR sequence of envelopes (Core Deterministic Encoding). A single
// reader goroutine decodes inbound frames and invokes the handler
// sequentially, which satisfies the single-callback-thread precondition of
// the broker. The reader starts with the first OnEvent call.
//
// Serve is the other end of the wire: it exposes any core.Engine (usually a
// Simulator in tests) to a Stream peer. Requests the engine rejects
// synchronously are answered with a failed Response so the peer's operation
// still completes.
package engine
