// Package core provides the foundational domain types and contracts used by
// vxbroker. It defines the core abstractions for:
//
//   - Operations (completion-observable handles for in-flight requests)
//   - Requests and Events (closed tagged unions exchanged with the engine)
//   - Engine (the opaque voice engine consumed through Send / OnEvent)
//   - Connection and login state enums plus their transition rules
//   - Typed correlation keys (session, account, query and composite ids)
//   - Change notification records and the Notifier fan-out
//   - The error taxonomy shared by every component
//
// The package keeps implementation concerns (dispatching, routing, session
// bookkeeping, concrete engine bridges) out of scope, exposing small types
// so higher level packages can be tested against simple engine doubles.
package core
