// Package redact implements the capture-time redaction engine: exact-match
// header/cookie scrubbing, query-param wildcard redaction, and ReDoS-guarded
// regex redaction for bodies and WebSocket frames. It never mutates its
// inputs — every operation returns a new value.
//
// Grounded on internal/redaction/redaction.go's RedactionEngine,
// generalized from "redact MCP tool response text" to "redact HAR
// headers/cookies/query/body values before persistence", and extended
// with a per-match timeout and size gate, since that engine's inputs
// were small tool responses rather than arbitrary response bodies.
package redact

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Redacted is the fixed replacement text for any matched value.
const Redacted = "[REDACTED]"

// bodyMatchTimeout bounds the cost of a single regex application against a
// single body, guarding against catastrophic regex backtracking.
const bodyMatchTimeout = 100 * time.Millisecond

// maxBodySize gates redaction entirely for oversized bodies; regex isn't
// even attempted past this size.
const maxBodySize = 512 * 1024

// Config is the set of redaction inputs a session is constructed with.
type Config struct {
	Headers      []string
	Cookies      []string
	QueryParams  []string
	BodyPatterns []string
}

// Counters holds the audit totals the engine accumulates over its
// lifetime, logged once at session stop.
type Counters struct {
	BodyRedactions int64
	WSRedactions   int64
	BodiesSkipped  int64
}

// Engine applies a fixed set of redaction rules. Immutable after
// construction; safe for concurrent use by worker goroutines, mirroring
// RedactionEngine's own concurrency note.
type Engine struct {
	headers     map[string]struct{}
	cookies     map[string]struct{}
	queryRegex  *regexp.Regexp
	bodyRegexes []*regexp.Regexp

	bodyRedactions int64
	wsRedactions   int64
	bodiesSkipped  int64
}

// New compiles a Config into an Engine. Query wildcard patterns use "*" →
// ".*" and "?" → ".", anchored per term.
func New(cfg Config) (*Engine, error) {
	e := &Engine{
		headers: toSet(cfg.Headers),
		cookies: toSet(cfg.Cookies),
	}

	if len(cfg.QueryParams) > 0 {
		re, err := compileQueryAlternation(cfg.QueryParams)
		if err != nil {
			return nil, err
		}
		e.queryRegex = re
	}

	for _, p := range cfg.BodyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		e.bodyRegexes = append(e.bodyRegexes, re)
	}

	return e, nil
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

func compileQueryAlternation(patterns []string) (*regexp.Regexp, error) {
	terms := make([]string, 0, len(patterns))
	for _, p := range patterns {
		var b strings.Builder
		b.WriteString("^")
		for _, r := range p {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		terms = append(terms, b.String())
	}
	return regexp.Compile("(?i)(" + strings.Join(terms, "|") + ")")
}

// HasRedactions reports whether any header, cookie, or query rule is
// configured — the fast path callers use to skip allocation entirely.
func (e *Engine) HasRedactions() bool {
	return len(e.headers) > 0 || len(e.cookies) > 0 || e.queryRegex != nil
}

// HasBodyPatterns reports whether any body/frame regex is configured.
func (e *Engine) HasBodyPatterns() bool {
	return len(e.bodyRegexes) > 0
}

// NVP is the minimal name/value shape the redactor operates on; callers
// adapt to/from har.NVP and har.Cookie at the boundary.
type NVP struct {
	Name  string
	Value string
}

// RedactHeaders returns a copy of headers with any configured name
// case-insensitively matched replaced by Redacted.
func (e *Engine) RedactHeaders(headers []NVP) []NVP {
	if len(e.headers) == 0 || len(headers) == 0 {
		return headers
	}
	out := make([]NVP, len(headers))
	for i, h := range headers {
		out[i] = h
		if _, ok := e.headers[strings.ToLower(h.Name)]; ok {
			out[i].Value = Redacted
		}
	}
	return out
}

// RedactCookies returns a copy of cookies with any configured name
// case-insensitively matched replaced by Redacted.
func (e *Engine) RedactCookies(cookies []NVP) []NVP {
	if len(e.cookies) == 0 || len(cookies) == 0 {
		return cookies
	}
	out := make([]NVP, len(cookies))
	for i, c := range cookies {
		out[i] = c
		if _, ok := e.cookies[strings.ToLower(c.Name)]; ok {
			out[i].Value = Redacted
		}
	}
	return out
}

// RedactQuery returns a copy of query params with any value whose name
// matches the wildcard alternation replaced by Redacted.
func (e *Engine) RedactQuery(params []NVP) []NVP {
	if e.queryRegex == nil || len(params) == 0 {
		return params
	}
	out := make([]NVP, len(params))
	for i, p := range params {
		out[i] = p
		if e.queryRegex.MatchString(p.Name) {
			out[i].Value = Redacted
		}
	}
	return out
}

// RedactURL splits on the first "?", strips any fragment from the query
// portion, redacts matching query values, and rejoins. Non-query URLs are
// returned unchanged.
func (e *Engine) RedactURL(rawURL string) string {
	if e.queryRegex == nil {
		return rawURL
	}
	idx := strings.IndexByte(rawURL, '?')
	if idx < 0 {
		return rawURL
	}
	base := rawURL[:idx]
	query := rawURL[idx+1:]
	if fragIdx := strings.IndexByte(query, '#'); fragIdx >= 0 {
		// Fragments are never sent to the server and carry nothing to
		// redact; strip them from the tail rather than resurrect them.
		query = query[:fragIdx]
	}

	pairs := strings.Split(query, "&")
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('?')
	for i, pair := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		name := pair
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			name = pair[:eq]
		}
		unescapedName, decErr := url.QueryUnescape(name)
		if decErr != nil {
			unescapedName = name
		}
		if e.queryRegex.MatchString(unescapedName) {
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(Redacted)
		} else {
			b.WriteString(pair)
		}
	}
	return b.String()
}

// RedactBody applies every configured body regex to text in turn. If text
// exceeds maxBodySize, it is returned unchanged and BodiesSkipped is
// incremented. Each regex gets a 100ms budget; on timeout that pattern is
// skipped (BodiesSkipped incremented) and the next pattern still runs.
func (e *Engine) RedactBody(text string) (string, int) {
	if len(text) > maxBodySize {
		atomic.AddInt64(&e.bodiesSkipped, 1)
		return text, 0
	}

	result := text
	count := 0
	for _, re := range e.bodyRegexes {
		redacted, matched, ok := applyWithTimeout(re, result)
		if !ok {
			atomic.AddInt64(&e.bodiesSkipped, 1)
			continue
		}
		result = redacted
		count += matched
	}
	if count > 0 {
		atomic.AddInt64(&e.bodyRedactions, int64(count))
	}
	return result, count
}

// RedactFrame applies body regexes to a single WebSocket frame payload,
// incrementing the WS-specific counter instead of the body counter.
func (e *Engine) RedactFrame(data string) string {
	if !e.HasBodyPatterns() {
		return data
	}
	redacted, count := e.redactFrameText(data)
	if count > 0 {
		atomic.AddInt64(&e.wsRedactions, int64(count))
	}
	return redacted
}

func (e *Engine) redactFrameText(text string) (string, int) {
	if len(text) > maxBodySize {
		atomic.AddInt64(&e.bodiesSkipped, 1)
		return text, 0
	}
	result := text
	total := 0
	for _, re := range e.bodyRegexes {
		redacted, matched, ok := applyWithTimeout(re, result)
		if !ok {
			atomic.AddInt64(&e.bodiesSkipped, 1)
			continue
		}
		result = redacted
		total += matched
	}
	return result, total
}

// applyWithTimeout runs a single regex replacement on its own goroutine so
// a pathological input can be abandoned after bodyMatchTimeout without
// blocking the caller. Go's RE2-based regexp is already linear-time, so
// this is defense in depth against unexpectedly large inputs rather than
// a correctness requirement, since RE2 already guarantees linear-time
// matching regardless.
func applyWithTimeout(re *regexp.Regexp, text string) (result string, matched int, ok bool) {
	type res struct {
		text    string
		matched int
	}
	done := make(chan res, 1)
	go func() {
		n := 0
		out := re.ReplaceAllStringFunc(text, func(m string) string {
			n++
			return Redacted
		})
		done <- res{text: out, matched: n}
	}()

	select {
	case r := <-done:
		return r.text, r.matched, true
	case <-time.After(bodyMatchTimeout):
		return text, 0, false
	}
}

// Counters returns a point-in-time snapshot of the audit counters.
func (e *Engine) Counters() Counters {
	return Counters{
		BodyRedactions: atomic.LoadInt64(&e.bodyRedactions),
		WSRedactions:   atomic.LoadInt64(&e.wsRedactions),
		BodiesSkipped:  atomic.LoadInt64(&e.bodiesSkipped),
	}
}

// Noop is a zero-configuration engine used when no redaction rules are
// active, so callers always have a non-nil Engine to call.
var noopOnce sync.Once
var noopEngine *Engine

// Noop returns a shared Engine with no rules configured.
func Noop() *Engine {
	noopOnce.Do(func() {
		noopEngine, _ = New(Config{})
	})
	return noopEngine
}
