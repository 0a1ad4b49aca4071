// Package logging assembles structured slog loggers for mediaconv.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with job IDs, pipeline stages, and
// correlation IDs. Components should take a *slog.Logger through their
// constructor and derive a component logger with NewComponentLogger.
package logging
