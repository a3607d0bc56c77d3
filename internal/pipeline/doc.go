// Package pipeline schedules an album build as phase groups of work units on
// one bounded worker pool.
//
// For every enabled format the run submits encode units (one per track, or a
// single disc unit for cdda), one build unit waiting on the whole encode
// group, an optional clean unit waiting on the build, and zip/publish units
// waiting on the clean (or build) unit. Submission is eager; ordering comes
// only from each unit blocking on its prerequisite handles before running its
// body. Cleanup protections are registered while submitting, so a clean unit
// always compares the directory against a complete set.
//
// Failures never stop unrelated units. A dependent whose prerequisite failed
// resolves with a PrerequisiteError pointing at the root handle, and the
// aggregator reports each root once. Cancellations are counted but not
// reported as failures.
package pipeline
