// Package preflight runs host readiness checks for pressing.
//
// It verifies that the state and log directories are usable and that the
// external encoders, taggers, and uploader resolve on PATH, probing their
// versions concurrently for `pressing doctor`. ProbeBinary is the tool probe
// target resolution uses to disable targets whose programs are missing.
package preflight
