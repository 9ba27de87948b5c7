// Package transport provides the reliable, ordered message channel the game
// loop runs on.
//
// A Hub owns every open connection. Socket goroutines only move bytes: they
// push connect, data and disconnect events into one FIFO queue that the game
// loop drains with PopEvent, and they write whatever SendTo queued. Each
// connection produces exactly one Connect event first and exactly one
// Disconnect event last.
//
// Connections can arrive over plain TCP (ListenTCP, DialTCP), where messages
// are cut from the byte stream by their tag, or over WebSocket
// (Hub.WSHandler, DialWS), where each binary frame carries one message.
package transport
