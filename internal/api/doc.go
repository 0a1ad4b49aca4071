// Package api defines the wire-format types shared by the HTTP control API
// and the CLI's JSON output, plus the queue actions both surfaces perform.
//
// DTOs use camelCase JSON tags. Statuses are exposed as their lowercase
// string values and timestamps as RFC3339 with milliseconds. Per-job
// actions (retry, remove) run one id at a time so every id reports its own
// outcome.
package api
