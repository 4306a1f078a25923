// Package config loads, normalizes, and validates inflow's configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and centralizes every knob the daemon and
// CLI need: the scanner root and poll interval, per-stage thread counts and
// working/target directories, the per-user directory basenames, the
// measurement ID pattern, logging, the optional audit ledger, and the
// daemon lock file.
//
// Always obtain settings through this package so downstream code receives
// sanitized absolute paths, canonical log formats, and clear validation
// errors.
package config
