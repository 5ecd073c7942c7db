// Package http implements the introspection API handlers.
//
// Handlers read the surface registry and the page bridge of one Host and
// resolve catalog classes on request. Errors are reported as
// types.ErrorResponse bodies carrying the request id.
package http
