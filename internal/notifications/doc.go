// Package notifications delivers build results via ntfy.
//
// The ntfy implementation posts to the topic configured in config.toml and
// degrades to a no-op when no topic is set. Success and failure messages can
// be switched off independently.
package notifications
