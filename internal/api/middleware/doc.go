// Package middleware provides the gin middleware of the introspection API.
//
// Middleware stack includes:
//   - RequestID: X-Request-ID propagation (UUIDs or prefixed ULIDs)
//   - Logger: request logging through zap
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting with idle eviction
//   - Gzip: response compression (klauspost/compress)
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics", "/events"))
package middleware
