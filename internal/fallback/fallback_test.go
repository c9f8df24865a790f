package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harcapture/engine/internal/adapter"
)

func TestEnableNetworkReplaysStepsInOrder(t *testing.T) {
	var seen []string

	steps := []Step{
		StepRequestWillBeSent(adapter.RequestWillBeSent{ID: "1", Method: "GET", URL: "https://example.com"}),
		StepResponseReceived(adapter.ResponseReceived{ID: "1", Status: 200}),
	}
	a := New(steps, nil)
	a.Subscribe(adapter.EventHandlers{
		OnRequestWillBeSent: func(e adapter.RequestWillBeSent) { seen = append(seen, "req:"+string(e.ID)) },
		OnResponseReceived:  func(e adapter.ResponseReceived) { seen = append(seen, "resp:"+string(e.ID)) },
	})

	require.NoError(t, a.EnableNetwork(context.Background()))
	require.Equal(t, []string{"req:1", "resp:1"}, seen)
}

func TestEnableNetworkIsIdempotent(t *testing.T) {
	calls := 0
	a := New([]Step{StepWSClosed(adapter.WSClosed{ID: "1"})}, nil)
	a.Subscribe(adapter.EventHandlers{OnWSClosed: func(adapter.WSClosed) { calls++ }})

	require.NoError(t, a.EnableNetwork(context.Background()))
	require.NoError(t, a.EnableNetwork(context.Background()))
	require.Equal(t, 1, calls)
}

func TestGetResponseBodyReturnsScriptedBody(t *testing.T) {
	a := New(nil, map[adapter.RequestID]Body{
		"1": {Text: "hello", Base64: false},
	})
	text, b64, err := a.GetResponseBody(context.Background(), "1")
	require.NoError(t, err)
	require.False(t, b64)
	require.Equal(t, "hello", text)
}

func TestGetResponseBodyUnknownIDErrors(t *testing.T) {
	a := New(nil, nil)
	_, _, err := a.GetResponseBody(context.Background(), "missing")
	require.Error(t, err)
}

func TestGetResponseBodyScriptedError(t *testing.T) {
	wantErr := errNoBody{id: "1"}
	a := New(nil, map[adapter.RequestID]Body{"1": {Err: wantErr}})
	_, _, err := a.GetResponseBody(context.Background(), "1")
	require.Error(t, err)
}
