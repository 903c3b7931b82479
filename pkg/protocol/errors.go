package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrUnknownEventType   = errors.New("unknown binary event type")
	ErrShortFrame         = errors.New("frame too short")
	ErrMalformed          = errors.New("malformed message")
)

// Frame kinds reported by DecodeError.
const (
	KindText   = "text"
	KindBinary = "binary"
)

// DecodeError reports a frame that could not be decoded. The frame is dropped;
// the connection and the following frames are unaffected.
type DecodeError struct {
	Kind        string
	MessageType string
	EventType   uint32
	Err         error
}

func (e *DecodeError) Error() string {
	if e.Kind == KindBinary {
		return fmt.Sprintf("decode binary frame (event %d): %v", e.EventType, e.Err)
	}
	if e.MessageType == "" {
		return fmt.Sprintf("decode text frame: %v", e.Err)
	}
	return fmt.Sprintf("decode text frame %q: %v", e.MessageType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
