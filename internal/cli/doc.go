// Package cli wires together the Cobra command tree for the sheltercache binary.
//
// It defines the root command and all subcommands (serve, install, activate,
// fetch, buckets, config, version), binds flags, reads configuration, builds
// the bucket store and controller, and returns deterministic exit codes.
package cli
