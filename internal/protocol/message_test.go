package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"text", Message{Kind: Text, Content: "hello"}},
		{"clear", Message{Kind: Clear}},
		{"full sync multiline", Message{Kind: FullSync, Content: "line one\nline two\r\n\ttabbed"}},
		{"sync request", Message{Kind: SyncRequest}},
		{"unicode and quotes", Message{Kind: Text, Content: `héllo "wörld" <&> 日本`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.msg)
			require.NoError(t, err)

			require.Equal(t, byte(Delimiter), b[len(b)-1])
			assert.Equal(t, 1, bytes.Count(b, []byte{Delimiter}), "frame must hold exactly one delimiter")

			got, err := Decode(b[:len(b)-1])
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestEncodeWireShape(t *testing.T) {
	b, err := Encode(Message{Kind: Clear})
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"clear\",\"content\":\"\"}\n", string(b))
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", "not-json"},
		{"empty", ""},
		{"missing type", `{"content":"x"}`},
		{"unknown type", `{"type":"delete","content":"x"}`},
		{"upper case type", `{"type":"TEXT","content":"x"}`},
		{"numeric type", `{"type":1,"content":"x"}`},
		{"numeric content", `{"type":"text","content":5}`},
		{"array", `["text","x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			require.Error(t, err)

			var perr *ProtocolError
			assert.True(t, errors.As(err, &perr), "expected *ProtocolError, got %T", err)
		})
	}
}

func TestDecodeDefaultsContent(t *testing.T) {
	got, err := Decode([]byte(`{"type":"sync_request"}`))
	require.NoError(t, err)
	assert.Equal(t, Message{Kind: SyncRequest}, got)
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	_, err := Encode(Message{Kind: "bogus"})
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}
