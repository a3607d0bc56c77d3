// Package tui renders a live per-phase progress view of a running build and
// lets the user abort it with q.
package tui
