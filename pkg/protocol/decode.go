package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decoder decodes text frames, skipping a configurable set of message types.
type Decoder struct {
	ignore []MessageType
}

// NewDecoder returns a decoder ignoring crystools.monitor plus the given types.
func NewDecoder(ignore ...MessageType) *Decoder {
	return &Decoder{ignore: append([]MessageType{TypeCrystoolsMonitor}, ignore...)}
}

var defaultDecoder = NewDecoder()

// DecodeText decodes a text frame with the default decoder.
func DecodeText(data []byte) (Message, error) {
	return defaultDecoder.Decode(data)
}

// Decode decodes one text frame. Unknown types fail with a *DecodeError
// wrapping ErrUnknownMessageType; ignored types decode to *Ignored.
func (d *Decoder) Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Kind: KindText, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	var msg Message
	switch env.Type {
	case TypeStatus:
		msg = &Status{}
	case TypeExecutionStart:
		msg = &ExecutionStart{}
	case TypeExecutionCached:
		msg = &ExecutionCached{}
	case TypeExecuting:
		msg = &Executing{}
	case TypeProgress:
		msg = &Progress{}
	case TypeExecuted:
		msg = &Executed{}
	case TypeExecutionSuccess:
		msg = &ExecutionSuccess{}
	case TypeExecutionError:
		msg = &ExecutionError{}
	case TypeManagerFeedback:
		msg = &ManagerFeedback{}
	default:
		if slices.Contains(d.ignore, env.Type) {
			return &Ignored{Kind: env.Type, Raw: env.Data}, nil
		}
		return nil, &DecodeError{Kind: KindText, MessageType: string(env.Type), Err: ErrUnknownMessageType}
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, &DecodeError{Kind: KindText, MessageType: string(env.Type), Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
		}
	}
	return msg, nil
}

// Encode wraps a message into its text frame envelope.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: msg.Type(), Data: data})
}

// Binary event types.
const (
	EventPreviewImage uint32 = 1
)

// Preview image formats.
const (
	ImageJPEG uint32 = 1
	ImagePNG  uint32 = 2
)

// Preview is a preview image pushed while a node executes.
type Preview struct {
	Mime       string
	Data       []byte
	ReceivedAt time.Time
	// PromptID is the prompt active when the frame arrived, set by the host.
	PromptID string
}

// DecodeBinary decodes a binary frame.
func DecodeBinary(data []byte) (*Preview, error) {
	if len(data) < 4 {
		return nil, &DecodeError{Kind: KindBinary, Err: ErrShortFrame}
	}
	event := binary.BigEndian.Uint32(data[:4])
	if event != EventPreviewImage {
		return nil, &DecodeError{Kind: KindBinary, EventType: event, Err: ErrUnknownEventType}
	}
	payload := data[4:]
	if len(payload) < 4 {
		return nil, &DecodeError{Kind: KindBinary, EventType: event, Err: ErrShortFrame}
	}

	mime := "image/jpeg"
	if binary.BigEndian.Uint32(payload[:4]) == ImagePNG {
		mime = "image/png"
	}
	return &Preview{Mime: mime, Data: payload[4:], ReceivedAt: time.Now()}, nil
}

// EncodePreview builds a binary preview frame.
func EncodePreview(format uint32, image []byte) []byte {
	frame := make([]byte, 8, 8+len(image))
	binary.BigEndian.PutUint32(frame[0:4], EventPreviewImage)
	binary.BigEndian.PutUint32(frame[4:8], format)
	return append(frame, image...)
}
