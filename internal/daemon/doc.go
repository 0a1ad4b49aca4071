// Package daemon coordinates the long-running mediaconv process.
//
// It wires configuration, queue storage, the preparation workflow, the
// optional NATS bus, and the HTTP control API into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon exposes the
// queue actions shared by the API (enqueue, cancel, retry, remove) and applies
// engine status messages received from the bus.
//
// Keep orchestration logic here: preparation itself lives in workflow while
// the daemon focuses on startup, shutdown, and high level coordination.
package daemon
