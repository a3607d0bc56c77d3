// Package config loads, normalizes, and validates pressing configuration.
//
// Configuration is read from TOML (~/.config/pressing/config.toml, then
// ./pressing.toml) on top of repository defaults. Paths are tilde-expanded,
// tool names fall back to their conventional binaries, and the [targets]
// section forms the caller level of target resolution together with CLI
// flags. A commented sample is embedded for `pressing config init`.
package config
