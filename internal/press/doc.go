// Package press is the application layer behind `pressing build`.
//
// Start loads the album description, merges caller, config, and album target
// choices, probes the external tools, locks the output directory, and hands a
// toolkit of real collaborators to the pipeline. Session.Wait collects the
// report, records it in the run history, sends notifications, and releases
// the lock.
package press
