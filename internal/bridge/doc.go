// Package bridge owns the session with the host application.
//
// Ownership boundary:
// - host registration of the control and tick handlers
// - START/EXIT control signals
// - process-wide queue, executor and exit flag
//
// Lifecycle order:
// - unregistered -> registered -> running -> stopping -> unregistered
//
// Bridge never exits the process.
package bridge
