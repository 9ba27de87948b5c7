// Package game implements the server side of the arena protocol.
//
// The game loop routes decoded messages through a dispatch.Dispatcher on
// which Coordinator.Register installed its handlers. Handlers return the
// replies to send back on the same connection, so the Coordinator never
// touches the transport.
package game
