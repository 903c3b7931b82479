package protocol

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		check  func(t *testing.T, msg Message)
		prompt string
	}{
		{
			name:  "status",
			frame: `{"type":"status","data":{"status":{"exec_info":{"queue_remaining":2}},"sid":"abc"}}`,
			check: func(t *testing.T, msg Message) {
				s := msg.(*Status)
				assert.Equal(t, "abc", s.SessionID())
				assert.Equal(t, 2, s.QueueRemaining())
			},
		},
		{
			name:   "executing idle",
			frame:  `{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`,
			prompt: "p1",
			check: func(t *testing.T, msg Message) {
				assert.Empty(t, msg.(*Executing).Node)
			},
		},
		{
			name:   "executed",
			frame:  `{"type":"executed","data":{"node":"9","prompt_id":"p1","output":{"images":[{"filename":"a.png","subfolder":"","type":"output"}],"text":["ignored"]}}}`,
			prompt: "p1",
			check: func(t *testing.T, msg Message) {
				e := msg.(*Executed)
				assert.Equal(t, "9", e.Node)
				assert.Equal(t, []ImageRef{{Filename: "a.png", Type: "output"}}, e.Output.Refs())
			},
		},
		{
			name:   "execution error",
			frame:  `{"type":"execution_error","data":{"prompt_id":"p1","node_id":"3","node_type":"KSampler","executed":["1"],"exception_message":"oom","exception_type":"RuntimeError","traceback":["line"],"current_inputs":{},"current_outputs":{}}}`,
			prompt: "p1",
			check: func(t *testing.T, msg Message) {
				e := msg.(*ExecutionError)
				assert.Equal(t, "RuntimeError", e.ExceptionType)
				assert.Equal(t, []string{"line"}, e.Traceback)
			},
		},
		{
			name:  "progress without prompt",
			frame: `{"type":"progress","data":{"value":3,"max":10}}`,
			check: func(t *testing.T, msg Message) {
				p := msg.(*Progress)
				assert.Equal(t, 3.0, p.Value)
				assert.Empty(t, p.PromptID())
			},
		},
		{
			name:  "manager feedback",
			frame: `{"type":"manager-terminal-feedback","data":{"data":"installing..."}}`,
			check: func(t *testing.T, msg Message) {
				assert.Equal(t, "installing...", msg.(*ManagerFeedback).Data)
			},
		},
		{
			name:  "ignored monitor",
			frame: `{"type":"crystools.monitor","data":{"cpu_utilization":3}}`,
			check: func(t *testing.T, msg Message) {
				assert.IsType(t, &Ignored{}, msg)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeText([]byte(tt.frame))
			require.NoError(t, err)
			tt.check(t, msg)
			if pm, ok := msg.(PromptMessage); ok {
				assert.Equal(t, tt.prompt, pm.PromptID())
			}
		})
	}
}

func TestDecodeText_Errors(t *testing.T) {
	_, err := DecodeText([]byte(`{"type":"who_knows","data":{}}`))
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	assert.Equal(t, "who_knows", derr.MessageType)

	_, err = DecodeText([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeText([]byte(`{"type":"progress","data":{"value":"x"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecoder_CustomIgnore(t *testing.T) {
	d := NewDecoder("progress_state")

	msg, err := d.Decode([]byte(`{"type":"progress_state","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageType("progress_state"), msg.Type())
}

func TestEncode_RoundTrip(t *testing.T) {
	frame, err := Encode(&ExecutionCached{Nodes: []string{"1", "2"}, Prompt: "p1"})
	require.NoError(t, err)

	msg, err := DecodeText(frame)
	require.NoError(t, err)
	assert.Equal(t, &ExecutionCached{Nodes: []string{"1", "2"}, Prompt: "p1"}, msg)
}

func TestDecodeBinary(t *testing.T) {
	frame, err := hex.DecodeString("00000001" + "00000002" + "89504e47")
	require.NoError(t, err)

	preview, err := DecodeBinary(frame)
	require.NoError(t, err)
	assert.Equal(t, "image/png", preview.Mime)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, preview.Data)
	assert.False(t, preview.ReceivedAt.IsZero())

	jpeg, err := DecodeBinary(EncodePreview(ImageJPEG, []byte{0xff, 0xd8}))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", jpeg.Mime)

	// unknown subtype falls back to jpeg
	other, err := DecodeBinary(EncodePreview(7, nil))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", other.Mime)
}

func TestDecodeBinary_Errors(t *testing.T) {
	_, err := DecodeBinary([]byte{0, 0, 0, 2, 0, 0, 0, 1})
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, uint32(2), derr.EventType)
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodeBinary([]byte{0, 0})
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = DecodeBinary([]byte{0, 0, 0, 1, 0})
	assert.ErrorIs(t, err, ErrShortFrame)
}
