// Package logging assembles structured slog loggers and formatting helpers used
// across pressing.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so work units automatically tag log lines
// with run identifiers, phase keys, targets, and track numbers. Each build run
// can additionally be teed into its own JSON log file.
package logging
