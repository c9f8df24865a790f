package wsaccum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harcapture/engine/internal/adapter"
	"github.com/harcapture/engine/internal/redact"
)

func TestFlushSynthesizesBaseEntry(t *testing.T) {
	a := New(0, redact.Noop())
	a.OnCreated(adapter.WSCreated{ID: "1", URL: "wss://example.com/socket"})
	a.OnHandshakeRequest(adapter.WSHandshakeRequest{ID: "1", Timestamp: 0, WallTime: 1000})
	a.OnHandshakeResponse(adapter.WSHandshakeResponse{ID: "1", Status: 101, StatusText: "Switching Protocols"})

	a.AddFrame("1", DirectionSend, 1, OpcodeText, "f1")
	a.AddFrame("1", DirectionReceive, 2, OpcodeText, "f2")
	a.AddFrame("1", DirectionSend, 3, OpcodeText, "f3")

	entry, ok := a.Flush("1")
	require.True(t, ok)
	require.Equal(t, 101, entry.Response.Status)
	require.Equal(t, "x-unknown", entry.Response.Content.MimeType)
	require.Len(t, entry.WebSocketMessages, 3)
	require.Equal(t, "f1", entry.WebSocketMessages[0].Data)
	require.Equal(t, "f3", entry.WebSocketMessages[2].Data)
}

func TestMaxFramesDropsOldest(t *testing.T) {
	a := New(2, redact.Noop())
	a.OnCreated(adapter.WSCreated{ID: "1", URL: "wss://example.com"})
	a.OnHandshakeRequest(adapter.WSHandshakeRequest{ID: "1"})
	a.OnHandshakeResponse(adapter.WSHandshakeResponse{ID: "1", Status: 101})

	a.AddFrame("1", DirectionSend, 1, OpcodeText, "f1")
	a.AddFrame("1", DirectionReceive, 2, OpcodeText, "f2")
	a.AddFrame("1", DirectionSend, 3, OpcodeText, "f3")

	entry, ok := a.Flush("1")
	require.True(t, ok)
	require.Len(t, entry.WebSocketMessages, 2)
	require.Equal(t, "f2", entry.WebSocketMessages[0].Data)
	require.Equal(t, "f3", entry.WebSocketMessages[1].Data)
}

func TestFramesSortedByWallTime(t *testing.T) {
	a := New(0, redact.Noop())
	a.OnCreated(adapter.WSCreated{ID: "1", URL: "wss://example.com"})
	a.OnHandshakeRequest(adapter.WSHandshakeRequest{ID: "1", WallTime: 100})
	a.OnHandshakeResponse(adapter.WSHandshakeResponse{ID: "1", Status: 101})

	a.AddFrame("1", DirectionSend, 5, OpcodeText, "later")
	a.AddFrame("1", DirectionSend, 1, OpcodeText, "earlier")

	entry, ok := a.Flush("1")
	require.True(t, ok)
	require.Equal(t, "earlier", entry.WebSocketMessages[0].Data)
	require.Equal(t, "later", entry.WebSocketMessages[1].Data)
	require.True(t, entry.WebSocketMessages[0].Time <= entry.WebSocketMessages[1].Time)
}

func TestIsWebSocketTracksConnections(t *testing.T) {
	a := New(0, redact.Noop())
	require.False(t, a.IsWebSocket("1"))
	a.OnCreated(adapter.WSCreated{ID: "1", URL: "wss://example.com"})
	require.True(t, a.IsWebSocket("1"))
	a.Flush("1")
	require.False(t, a.IsWebSocket("1"))
}

func TestRedactionAppliedToFrameData(t *testing.T) {
	redactor, err := redact.New(redact.Config{BodyPatterns: []string{"secret"}})
	require.NoError(t, err)
	a := New(0, redactor)
	a.OnCreated(adapter.WSCreated{ID: "1", URL: "wss://example.com"})
	a.OnHandshakeRequest(adapter.WSHandshakeRequest{ID: "1"})
	a.OnHandshakeResponse(adapter.WSHandshakeResponse{ID: "1", Status: 101})
	a.AddFrame("1", DirectionSend, 1, OpcodeText, "the secret value")

	entry, ok := a.Flush("1")
	require.True(t, ok)
	require.Equal(t, "the [REDACTED] value", entry.WebSocketMessages[0].Data)
}

func TestFlushUnknownConnectionReturnsFalse(t *testing.T) {
	a := New(0, redact.Noop())
	_, ok := a.Flush("missing")
	require.False(t, ok)
}
