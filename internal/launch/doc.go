// Package launch serves a finalized image.
//
// [Run] imports an image archive produced by a passing build, starts the
// image's entrypoint in the host network namespace, waits until the declared
// port accepts TCP connections, and then blocks until its context is
// cancelled. Termination sends SIGTERM, waits a grace period, then sends
// SIGKILL before the container is removed.
//
// Images without the verification label are refused, so only artifacts that
// went through the gate can be launched.
package launch
