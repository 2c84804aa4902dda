// Package config loads and merges sheltercache configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (SHELTERCACHE_VERSION, SHELTERCACHE_ORIGIN, SHELTERCACHE_STORE_DRIVER, etc.)
//  3. Config file ($XDG_CONFIG_HOME/sheltercache/config.json, or --config)
//  4. Built-in defaults
//
// Config files are JSON with comments allowed. Use [Load] to obtain a merged
// [Config], [Save] to write one, and [SetField] to update a single key.
package config
