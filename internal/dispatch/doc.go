// Package dispatch routes remote operation calls.
//
// Host-affine operations go through the tick queue and wait for a drain; all
// others run inline on the caller's goroutine. Failures come back as a
// structured {kind, message} response.
package dispatch
