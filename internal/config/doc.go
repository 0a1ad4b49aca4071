// Package config loads, normalizes, and validates mediaconv configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours MEDIACONV_* environment
// fallbacks. Always obtain settings through this package so downstream code
// receives absolute paths and clear validation errors.
package config
