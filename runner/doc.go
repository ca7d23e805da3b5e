// Package runner implements the event pump that serializes engine callbacks.
//
// Some engines deliver events from whatever goroutine happens to read them
// (a network reader, a native callback thread pool). The broker, however,
// assumes that all inbound events are processed on one logical thread so that
// order-sensitive state transitions (Connecting→Connected→Disconnecting) are
// applied exactly in delivery order.
//
// The Runner restores that precondition: producers Post events into a
// bounded queue; a single Run loop drains it and hands every event to the
// dispatch function (normally router.Router.Dispatch) one at a time.
//
//	engine goroutines ──Post──▶ [ buffered queue ] ──Run──▶ Dispatch(ev)
//
// # Lifecycle
//   - Run blocks until its context is cancelled or Close is called
//   - only one Run loop may be active at a time
//   - Close is idempotent; events posted afterwards are rejected with ErrClosed
//   - events still queued when Close is called are dispatched before Run returns
//
// See runner.go for the implementation.
package runner
