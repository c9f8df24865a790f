package har

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeMarshalRoundTrip(t *testing.T) {
	src, err := time.Parse(time.RFC3339Nano, "2026-07-30T10:15:30.123456+02:00")
	require.NoError(t, err)
	har := Time{Time: src}

	data, err := json.Marshal(har)
	require.NoError(t, err)

	var decoded Time
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, decoded.Equal(src))
	require.Equal(t, src.Nanosecond()/1000, decoded.Nanosecond()/1000)
}

func TestContentOmitsTextWhenNotRetrieved(t *testing.T) {
	c := Content{Size: -1, MimeType: "text/html"}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.NotContains(t, string(data), `"text"`)
}

func TestContentBase64Encoding(t *testing.T) {
	c := Content{Size: 4, MimeType: "image/png", Text: []byte{0xff, 0x00, 0xfe, 0x01}, HasText: true, Encoding: "base64"}
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Content
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, c.Text, decoded.Text)
	require.Equal(t, "base64", decoded.Encoding)
}

func TestPostDataPlainText(t *testing.T) {
	p := PostData{MimeType: "application/json", Text: []byte(`{"a":1}`)}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.Contains(t, string(data), `"text":"{\"a\":1}"`)
	require.NotContains(t, string(data), `"encoding"`)
}

func TestDocumentValidatePagerefIntegrity(t *testing.T) {
	d := NewDocument("engine", "0.1.0")
	d.AddPage(Page{ID: "page_1", Title: "t", StartedDateTime: "2026-07-30T10:00:00.000000Z"})
	d.AddEntry(&Entry{
		PageRef:  "page_1",
		Request:  &Request{Method: "GET", URL: "https://example.com"},
		Response: &Response{Status: 200},
	})
	require.NoError(t, d.Validate())

	d.AddEntry(&Entry{
		PageRef:  "missing",
		Request:  &Request{Method: "GET", URL: "https://example.com"},
		Response: &Response{Status: 200},
	})
	require.Error(t, d.Validate())
}

func TestDocumentValidateRequiresRequestAndResponse(t *testing.T) {
	d := NewDocument("engine", "0.1.0")
	d.AddEntry(&Entry{Response: &Response{Status: 200}})
	require.Error(t, d.Validate())
}

func TestDocumentValidateWebSocketOrdering(t *testing.T) {
	d := NewDocument("engine", "0.1.0")
	d.AddEntry(&Entry{
		Request:  &Request{Method: "GET", URL: "wss://example.com"},
		Response: &Response{Status: 101},
		WebSocketMessages: []WebSocketMessage{
			{Time: 2.0}, {Time: 1.0},
		},
	})
	require.Error(t, d.Validate())
}

func TestHarEntriesSortedChronologically(t *testing.T) {
	d := NewDocument("engine", "0.1.0")
	later, _ := time.Parse(time.RFC3339Nano, "2026-07-30T10:02:00Z")
	earlier, _ := time.Parse(time.RFC3339Nano, "2026-07-30T10:01:00Z")
	d.AddEntry(&Entry{StartedDateTime: Time{later}, Request: &Request{Method: "GET", URL: "https://b"}, Response: &Response{Status: 200}})
	d.AddEntry(&Entry{StartedDateTime: Time{earlier}, Request: &Request{Method: "GET", URL: "https://a"}, Response: &Response{Status: 200}})

	wire := d.Har()
	require.Len(t, wire.Log.Entries, 2)
	require.Equal(t, "https://a", wire.Log.Entries[0].Request.URL)
	require.Equal(t, "https://b", wire.Log.Entries[1].Request.URL)
}
