// Package engine runs the game loop for either endpoint.
//
// Each tick drains the transport's event queue completely, hands every event
// to a dispatch.Dispatcher, sends the replies back on the originating
// connection and finally runs the registered tick hooks (position reporting
// on the client, the session sweeper on the server).
//
// Optional NDJSON packet logging (see internal/packetlog) records every
// inbound and outbound message with a hex dump.
package engine
