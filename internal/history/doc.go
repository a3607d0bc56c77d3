// Package history records completed and aborted build runs in SQLite.
//
// Each run stores its identifier, album, output directory, timing, the final
// success flag, and per-outcome unit counts. Root-cause failures are kept in
// a child table so `pressing history` can show what broke. The database is a
// report only; builds never read it to decide what to do.
//
// Schema changes ship as numbered files under migrations/ and are applied in
// name order when the store opens.
package history
