// Package main implements the mediaconv command-line interface.
//
// Queue commands talk to a running daemon over its HTTP API when one answers
// on the configured bind address and fall back to the SQLite queue otherwise.
// The daemon command runs the preparation worker in the foreground.
package main
