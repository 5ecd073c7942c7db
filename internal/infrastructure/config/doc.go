// Package config provides configuration management for the plugin host.
//
// Configuration is loaded from environment variables with sensible defaults
// (envconfig). A YAML or TOML file may be layered on top with LoadFile; it
// is also the only way to declare the class catalog.
//
// Configuration Sections:
//   - Server: introspection API settings (port, host)
//   - Host: plugin parameters (page, HTML access, popups, class catalog)
//   - Engine: in-process engine limits
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Loader: page fetch timeouts, retries and circuit breaker
//
// Example Usage:
//
//	cfg, err := config.LoadFile("host.yaml")
//	if err != nil {
//		return err
//	}
//
// Environment Variables:
//   - MOON_PORT, MOON_HOST, MOON_API_ENABLED
//   - MOON_PAGE, MOON_ENABLE_HTML_ACCESS, MOON_OUT_OF_BROWSER, MOON_ALLOW_POPUPS
//   - MOON_MAX_TYPES, LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - MOON_LOADER_TIMEOUT, MOON_LOADER_RETRIES, MOON_LOADER_MAX_BYTES
package config
