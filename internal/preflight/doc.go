// Package preflight provides readiness checks for the filesystem paths and
// external services mediaconv depends on.
//
// The CLI "doctor" command runs RunAll and renders the results; the daemon
// logs failed checks at startup without refusing to run, since a missing
// bus or notification topic only disables that feature.
package preflight
