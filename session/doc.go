// Package session contains the stateful entities of the broker: login
// sessions (one per account), channel sessions (one per joined channel) and
// the audio device lists.
//
// Every entity follows the same shape:
//
//   - it registers an event handler for its correlation key with the router
//     when created and unregisters it in Delete
//   - Begin* methods validate synchronously (ArgumentError, InvalidStateError),
//     apply speculative state and hand one request to the dispatcher
//   - event handlers apply authoritative state in delivery order
//   - observers learn about changes through Subscribe
//
// Collections are only mutated by event and response handlers; accessors
// return copies.
package session
