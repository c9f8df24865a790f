package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactHeadersCaseInsensitive(t *testing.T) {
	e, err := New(Config{Headers: []string{"Authorization"}})
	require.NoError(t, err)

	out := e.RedactHeaders([]NVP{{Name: "authorization", Value: "Bearer x"}, {Name: "X-Other", Value: "keep"}})
	require.Equal(t, Redacted, out[0].Value)
	require.Equal(t, "keep", out[1].Value)
}

func TestRedactCookies(t *testing.T) {
	e, err := New(Config{Cookies: []string{"session"}})
	require.NoError(t, err)
	out := e.RedactCookies([]NVP{{Name: "Session", Value: "abc"}})
	require.Equal(t, Redacted, out[0].Value)
}

func TestRedactQueryWildcard(t *testing.T) {
	e, err := New(Config{QueryParams: []string{"api_*"}})
	require.NoError(t, err)
	out := e.RedactQuery([]NVP{{Name: "api_key", Value: "y"}, {Name: "page", Value: "1"}})
	require.Equal(t, Redacted, out[0].Value)
	require.Equal(t, "1", out[1].Value)
}

func TestRedactURL(t *testing.T) {
	e, err := New(Config{QueryParams: []string{"api_*"}})
	require.NoError(t, err)
	got := e.RedactURL("https://x.test/?api_key=y&page=1")
	require.Equal(t, "https://x.test/?api_key=[REDACTED]&page=1", got)
}

func TestRedactURLNoQueryUnchanged(t *testing.T) {
	e, err := New(Config{QueryParams: []string{"api_*"}})
	require.NoError(t, err)
	require.Equal(t, "https://x.test/path", e.RedactURL("https://x.test/path"))
}

func TestRedactBodyPattern(t *testing.T) {
	e, err := New(Config{BodyPatterns: []string{`[\w.+-]+@[\w-]+\.[\w.-]+`}})
	require.NoError(t, err)
	out, count := e.RedactBody("contact user@example.com now")
	require.Equal(t, 1, count)
	require.Equal(t, "contact [REDACTED] now", out)
	require.EqualValues(t, 1, e.Counters().BodyRedactions)
}

func TestRedactBodyOversizeSkipped(t *testing.T) {
	e, err := New(Config{BodyPatterns: []string{"x"}})
	require.NoError(t, err)
	big := strings.Repeat("x", maxBodySize+1)
	out, count := e.RedactBody(big)
	require.Equal(t, big, out)
	require.Equal(t, 0, count)
	require.EqualValues(t, 1, e.Counters().BodiesSkipped)
}

func TestRedactFrameUsesWSCounter(t *testing.T) {
	e, err := New(Config{BodyPatterns: []string{"secret"}})
	require.NoError(t, err)
	out := e.RedactFrame("the secret is out")
	require.Equal(t, "the [REDACTED] is out", out)
	require.EqualValues(t, 1, e.Counters().WSRedactions)
	require.EqualValues(t, 0, e.Counters().BodyRedactions)
}

func TestHasRedactionsFastPath(t *testing.T) {
	empty, err := New(Config{})
	require.NoError(t, err)
	require.False(t, empty.HasRedactions())
	require.False(t, empty.HasBodyPatterns())

	withHeaders, err := New(Config{Headers: []string{"x"}})
	require.NoError(t, err)
	require.True(t, withHeaders.HasRedactions())
}

func TestNoopEngineIsSafe(t *testing.T) {
	e := Noop()
	require.False(t, e.HasRedactions())
	out, count := e.RedactBody("anything")
	require.Equal(t, "anything", out)
	require.Equal(t, 0, count)
}
