// Package config loads, normalizes, and validates vidproc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as PORT,
// STORAGE_ACCESS_KEY, and REDIS_ADDR. A .env file in the working directory is
// loaded first so local development can keep credentials out of the TOML file.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
