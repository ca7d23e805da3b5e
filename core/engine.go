package core

// EventHandler receives inbound engine messages.
type EventHandler func(ev Event)

// Engine is the opaque voice engine the broker talks to. It is consumed
// through two narrow contracts:
//
//   - Send hands one request to the engine and reports synchronous
//     acceptance or rejection. A rejected request produces no response.
//   - OnEvent installs the single handler the engine calls for every
//     response and event.
//
// Implementations SHOULD deliver all handler calls on one logical goroutine
// and in order; the broker relies on that for order-sensitive state
// transitions but does not enforce it. Engines that call back from arbitrary
// goroutines should be fronted by runner.Runner.
type Engine interface {
	// Ready reports whether the engine handle is initialized.
	Ready() bool

	// Send hands a request to the engine.
	Send(req Request) error

	// OnEvent installs the inbound handler, replacing any previous one.
	OnEvent(h EventHandler)
}
