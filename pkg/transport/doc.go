// Package transport provides a WebSocket client that never gives up.
//
// A Transport keeps one physical connection open. When it drops, a reconnect is
// scheduled after a fixed delay, forever, until Close is called or the context
// given to Connect is cancelled. Frames sent while disconnected are buffered
// and flushed in order as soon as a connection opens; the OnConnect handler
// runs after that flush.
//
// Callbacks of a superseded connection never fire: each connection carries a
// generation number checked before any handler is invoked.
package transport
