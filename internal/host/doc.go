// Package host provides a frame-driven stand-in for the host application and
// its operator control channel.
package host
