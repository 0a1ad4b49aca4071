// Package services defines shared utilities consumed by the preparation
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify preparation
//     failures (storage, copy, download, scheme, cancellation, persistence) and
//     translate them into the status detail shown to users.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform across components.
package services
