// Package main runs one plugin host.
//
// The host creates an engine surface, loads the hosting page, starts the
// HTML bridge and serves the introspection API.
//
// Configuration:
//   - Environment variables (MOON_*, LOG_*, RATE_LIMIT_*)
//   - An optional YAML or TOML file (-config)
//   - CLI flags (override both)
//
// Usage:
//
//	# Serve the API with a class catalog
//	./host -config host.yaml
//
//	# Development mode (colored logs, debug level)
//	./host -dev -page ./index.html
//
//	# Resolve classes at start-up and exit without serving
//	./host -config host.yaml -resolve Circle,Square -serve=false
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
