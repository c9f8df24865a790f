// Package match implements the URL glob filter and MIME-type scope used to
// decide whether a captured request should be kept and whether its body
// should be retrieved. No glob-matching library appears anywhere in the
// retrieved example pack (direct imports checked across every repo and
// manifest), so the glob→regexp translation here is hand-written in the
// same register as the rest of this codebase's own string-matching
// helpers.
package match

import (
	"regexp"
	"strings"
)

// BodyScope is a MIME scope preset controlling which content types get
// their bodies retrieved.
type BodyScope int

const (
	// ScopeNone never retrieves bodies regardless of MIME type.
	ScopeNone BodyScope = iota
	// ScopePagesAndAPI retrieves bodies for HTML pages and JSON/XML APIs.
	ScopePagesAndAPI
	// ScopeAll retrieves bodies for any MIME type.
	ScopeAll
)

var pagesAndAPIMimes = map[string]struct{}{
	"text/html":              {},
	"application/xhtml+xml":  {},
	"application/json":       {},
	"application/ld+json":    {},
	"application/xml":        {},
	"text/xml":               {},
}

// URLMatcher compiles include/exclude glob patterns and decides whether a
// URL should be captured. Excludes take precedence over includes.
type URLMatcher struct {
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
}

// NewURLMatcher compiles the given glob pattern lists. Patterns must be
// non-empty strings; validation of that requirement lives in
// internal/validate, not here — this constructor assumes valid input.
func NewURLMatcher(includePatterns, excludePatterns []string) (*URLMatcher, error) {
	m := &URLMatcher{}
	for _, p := range includePatterns {
		re, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		m.includes = append(m.includes, re)
	}
	for _, p := range excludePatterns {
		re, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		m.excludes = append(m.excludes, re)
	}
	return m, nil
}

// ShouldCapture applies exclude-then-include precedence: any exclude match
// rejects; otherwise, a non-empty include list rejects unless one matches;
// otherwise accept.
func (m *URLMatcher) ShouldCapture(url string) bool {
	for _, re := range m.excludes {
		if re.MatchString(url) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, re := range m.includes {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// compileGlob translates a glob pattern into an anchored regexp. Supported
// tokens: "**" matches any characters including "/"; "*" matches any
// characters excluding "/"; "?" matches exactly one character. Every other
// rune is regex-escaped literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// MIMEMatcher decides whether a response body should be retrieved based on
// its MIME type.
type MIMEMatcher struct {
	scope    BodyScope
	freeList map[string]struct{}
}

// NewMIMEMatcher builds a matcher from a scope preset plus an additive
// list of exact MIME types (always honoured regardless of scope).
func NewMIMEMatcher(scope BodyScope, freeList []string) *MIMEMatcher {
	m := &MIMEMatcher{scope: scope, freeList: make(map[string]struct{}, len(freeList))}
	for _, mt := range freeList {
		m.freeList[normalizeMime(mt)] = struct{}{}
	}
	return m
}

// ShouldRetrieveBody reports whether mime qualifies for body retrieval.
// Comparison ignores everything after the first ";" and is
// case-insensitive.
func (m *MIMEMatcher) ShouldRetrieveBody(mime string) bool {
	norm := normalizeMime(mime)
	if _, ok := m.freeList[norm]; ok {
		return true
	}
	switch m.scope {
	case ScopeAll:
		return true
	case ScopePagesAndAPI:
		_, ok := pagesAndAPIMimes[norm]
		return ok
	default:
		return false
	}
}

func normalizeMime(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
