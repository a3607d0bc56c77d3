// Package services defines shared utilities consumed by the build pipeline and
// its external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, phase keys, and track
//     numbers for logging.
//   - Structured error markers plus the Wrap helper that tag failures with the
//     pipeline stage that produced them.
//   - Outcome classification so reports can tell a missing tool from a
//     non-zero encoder exit, an I/O failure, or a user abort.
//
// Use these helpers when wiring new work units so error reporting and
// observability stay uniform across formats.
package services
