// Package types provides the wire types shared by the introspection API,
// its WebSocket stream and the Go client.
//
// Core Types:
//   - TypeInfo, TypeDetail: registered classes and their ancestry
//   - Health: surface and bridge status
//   - Scriptable: objects and createable aliases visible to page script
//
// Request Types:
//   - ResolveRequest: resolve a catalog class by name
//   - WSMessage: WebSocket event frames
package types
