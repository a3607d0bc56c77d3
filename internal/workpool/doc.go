// Package workpool provides the bounded executor shared by every build phase.
//
// Units run on a fixed set of workers in FIFO order and expose waitable,
// cancellable handles. A failing or panicking unit never stops the pool or its
// siblings; Shutdown(true) resolves queued units as cancelled and interrupts
// running ones through their contexts.
package workpool
