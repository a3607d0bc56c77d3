// Package main hosts the pressing CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into builds, album file
// scaffolding, host checks, and run history listings. Configuration loading
// and logger setup live in the shared command context so subcommands stay
// declarative; the heavy lifting belongs in internal/press and the packages
// it wires together.
package main
