// Package protocol decodes the messages pushed by the execution engine over its
// WebSocket.
//
// Text frames are JSON envelopes {"type": ..., "data": ...}. Binary frames start
// with a big-endian uint32 event type; event 1 carries a preview image whose
// format is selected by a second uint32 (1 = JPEG, 2 = PNG).
//
// Decoding failures are reported as *DecodeError and concern a single frame only.
package protocol
