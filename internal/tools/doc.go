// Package tools provides the builtin operation catalog served by the bridge.
//
// Ownership boundary:
// - liveness and diagnostics operations
//
// - host console command execution behind an allowlist
//
// Operations declared host-affine here run only during a host tick drain.
package tools
