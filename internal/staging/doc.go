// Package staging owns the per-job working directories that hold
// materialized inputs.
//
// Every job gets job-<id> under the configured staging root. The directory is
// created lazily, reused across calls, and removed recursively on failure or
// once the job leaves the pipeline. Sweepers remove directories left behind
// by crashes.
package staging
