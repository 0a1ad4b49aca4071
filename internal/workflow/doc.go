// Package workflow prepares queued jobs for conversion.
//
// The Manager runs a single worker that takes the oldest queued job, hands it
// to the Preparer, and passes the result to the conversion engine. Preparer
// owns one job at a time: it moves the job to preparing, allocates its
// staging directory, materializes every input, and finishes with either a
// ready job or a failed one whose staging directory has been removed.
//
// Cancellation is per job. CancelJob interrupts an in-flight preparation,
// which records the job as failed with "Job was cancelled", or marks a job
// that has not been picked up yet as cancelled.
//
// On Start the manager resets jobs left in preparing by a previous run and
// sweeps staging directories that no longer belong to a live job.
package workflow
