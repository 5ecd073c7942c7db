// Package server assembles the introspection API: the gin router, its
// middleware chain and the HTTP server lifecycle.
package server
