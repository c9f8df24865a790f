package match

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLMatcherExcludeTakesPrecedence(t *testing.T) {
	m, err := NewURLMatcher([]string{"**"}, []string{"**/*.png"})
	require.NoError(t, err)
	require.False(t, m.ShouldCapture("https://example.com/logo.png"))
	require.True(t, m.ShouldCapture("https://example.com/page.html"))
}

func TestURLMatcherNoIncludesAcceptsAll(t *testing.T) {
	m, err := NewURLMatcher(nil, nil)
	require.NoError(t, err)
	require.True(t, m.ShouldCapture("https://anything.example/x"))
}

func TestURLMatcherNonEmptyIncludeRejectsNonMatching(t *testing.T) {
	m, err := NewURLMatcher([]string{"https://api.example.com/*"}, nil)
	require.NoError(t, err)
	require.True(t, m.ShouldCapture("https://api.example.com/users"))
	require.False(t, m.ShouldCapture("https://other.example.com/users"))
}

func TestGlobDoubleStarCrossesSlashes(t *testing.T) {
	m, err := NewURLMatcher([]string{"https://example.com/**"}, nil)
	require.NoError(t, err)
	require.True(t, m.ShouldCapture("https://example.com/a/b/c.json"))
}

func TestGlobSingleStarDoesNotCrossSlash(t *testing.T) {
	m, err := NewURLMatcher([]string{"https://example.com/*/page"}, nil)
	require.NoError(t, err)
	require.True(t, m.ShouldCapture("https://example.com/x/page"))
	require.False(t, m.ShouldCapture("https://example.com/x/y/page"))
}

func TestGlobQuestionMarkSingleChar(t *testing.T) {
	m, err := NewURLMatcher([]string{"https://example.com/v?"}, nil)
	require.NoError(t, err)
	require.True(t, m.ShouldCapture("https://example.com/v1"))
	require.False(t, m.ShouldCapture("https://example.com/v12"))
}

func TestMIMEMatcherScopeNone(t *testing.T) {
	m := NewMIMEMatcher(ScopeNone, nil)
	require.False(t, m.ShouldRetrieveBody("text/html"))
}

func TestMIMEMatcherScopePagesAndAPI(t *testing.T) {
	m := NewMIMEMatcher(ScopePagesAndAPI, nil)
	require.True(t, m.ShouldRetrieveBody("text/html; charset=utf-8"))
	require.True(t, m.ShouldRetrieveBody("APPLICATION/JSON"))
	require.False(t, m.ShouldRetrieveBody("image/png"))
}

func TestMIMEMatcherFreeListOverridesScope(t *testing.T) {
	m := NewMIMEMatcher(ScopeNone, []string{"image/png"})
	require.True(t, m.ShouldRetrieveBody("image/png"))
	require.False(t, m.ShouldRetrieveBody("image/gif"))
}

func TestMIMEMatcherScopeAll(t *testing.T) {
	m := NewMIMEMatcher(ScopeAll, nil)
	require.True(t, m.ShouldRetrieveBody("application/octet-stream"))
}
