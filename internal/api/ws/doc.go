// Package ws streams class registration events over WebSocket.
//
// Each connection receives a welcome frame carrying its subscriber id, then
// one "registered" frame per class the surface mirrors into the engine,
// root classes first. Clients may send {"type":"ping"} and get a pong back.
// Slow clients lose events rather than stall registration.
package ws
