// Package jobs runs transcription and translation jobs in the background and
// tracks their progress.
//
// The Registry is the single in-memory source of truth for job status. Every
// record belongs to exactly one run: each submission issues a run token, and
// writes carrying a superseded token are dropped, so a resubmitted
// translation never sees stale progress from the earlier run. While a job is
// PROCESSING its progress only moves forward; once it reaches SUCCESS or
// FAILURE the record is frozen.
//
// The Orchestrator accepts submissions, inserts the PENDING record, and hands
// the pipeline to a Spawner. Submit calls return as soon as the job is
// scheduled. Pipeline errors never reach callers: they become FAILURE records
// with an "Error: <message>" status and are logged with full detail.
package jobs
