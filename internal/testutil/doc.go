// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when wiring a simulated engine to a dispatcher and a
// router, building canned archive history and recording change
// notifications. They are not intended for production usage.
package testutil
