// Package server owns the network side of the bridge.
//
// Ownership boundary:
// - listener startup and the once-only shutdown with its final drain
// - HTTP and event-stream routes
// - optional tick driving for hosts without a frame callback
//
// Relevant packages:
// - internal/dispatch
// - internal/bridge
package server
