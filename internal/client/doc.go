// Package client is a Go client for the host introspection API.
//
// Requests carry a fresh X-Request-ID, pass a client-side rate limiter and
// run behind a circuit breaker that trips on transport errors and 5xx
// answers. Non-2xx answers surface as *APIError.
package client
