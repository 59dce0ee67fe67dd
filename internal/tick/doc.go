// Package tick owns the hand-off between serving goroutines and the host thread.
//
// Ownership boundary:
// - pending call slots resolved exactly once
// - the unbounded FIFO queue with many producers and one consumer
// - per-tick drains and the wrapping tick counter
//
// Drains run only on the host tick. Calls are never dropped; a closed queue
// resolves them with its close reason.
package tick
