// Package main is a command-line client for a running host.
//
// Usage:
//
//	hostctl [-addr URL] [-timeout D] <command> [args]
//
// Commands:
//
//	health              surface and bridge status
//	classes             catalog class names
//	types               registered classes
//	type NAME           one registered class with its ancestry
//	resolve NAME...     resolve catalog classes
//	scriptable          scriptable objects and createable aliases
//	nav [STATE]         read or set the navigation state
//	metrics             Prometheus exposition text
//	events              stream registrations until interrupted
package main
