// Package dispatch implements the request side of the broker.
//
// A Dispatcher hands typed requests to the single injected core.Engine and
// remembers, per request cookie, the pending core.Operation plus an optional
// response handler. When the engine answers (a *core.Response delivered via
// the router), Resolve completes the operation exactly once.
//
// # Failure semantics
//
//   - No engine, or engine not Ready: Issue returns *core.EngineUnavailableError
//     and sends nothing.
//   - Send rejected synchronously: the operation is completed immediately with
//     the send error and returned; no response is expected.
//   - Engine reports failure: the operation completes with *core.EngineError,
//     surfaced to callers as *core.OperationFailedError by CheckForError.
//
// # Threading
//
// Issue may be called from any goroutine. Resolve is expected on the single
// engine-callback goroutine; that is an environmental precondition and is
// not enforced here.
package dispatch
