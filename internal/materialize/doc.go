// Package materialize turns a job's input references into local files the
// conversion engine can read.
//
// Inputs are resolved strictly in order. Local files pass through untouched,
// content-store references are copied to input_<index> in the job's staging
// directory, and http(s) URLs are downloaded there while the download is
// polled for progress. The first input that cannot be resolved stops the
// pass; the caller owns cleanup of the staging directory.
package materialize
