// Package wire implements the binary message format shared by the arena
// client and server.
//
// Every message is a single tag byte followed by a fixed payload whose layout
// is determined by the tag alone. There is no length prefix. Numeric fields
// are little-endian; strings are UTF-8 stored in exactly NameSize bytes,
// NUL-padded when shorter and truncated (on a rune boundary) when longer.
//
// The 'S' tag is used in both directions with the same layout. Decoding takes
// a Direction so a client-bound 'S' becomes a SelectAck and a server-bound 'S'
// becomes a SelectCharacter.
package wire
