// Package har defines the HAR 1.2 wire entities and their JSON serialization
// rules. Nothing in this package touches capture, correlation, or transport
// concerns — it is the document shape only.
package har

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// HARVersion is the fixed HAR spec version this package emits.
const HARVersion = "1.2"

// Unknown is the sentinel for a timing or size value that does not apply.
const Unknown int64 = -1

// Log is the root object of a HAR document.
type Log struct {
	Version string                 `json:"version"`
	Creator Creator                `json:"creator"`
	Browser *Browser               `json:"browser,omitempty"`
	Pages   []Page                 `json:"pages,omitempty"`
	Entries []*Entry               `json:"entries"`
	Comment string                 `json:"comment,omitempty"`
	Custom  map[string]interface{} `json:"_custom,omitempty"`
}

// Har wraps the Log under the required top-level "log" key.
type Har struct {
	Log Log `json:"log"`
}

// Creator identifies the application that produced the log.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Comment string `json:"comment,omitempty"`
}

// Browser identifies the user agent under capture, when known.
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Comment string `json:"comment,omitempty"`
}

// Page groups entries under a navigation.
type Page struct {
	StartedDateTime string      `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
	Comment         string      `json:"comment,omitempty"`
}

// PageTimings holds the two page-level milestones the adapter forwards.
// -1 means the milestone was never observed.
type PageTimings struct {
	OnContentLoad int64  `json:"onContentLoad,omitempty"`
	OnLoad        int64  `json:"onLoad,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

// Entry is one logical HTTP exchange or one flushed WebSocket connection.
type Entry struct {
	PageRef         string  `json:"pageref,omitempty"`
	StartedDateTime Time    `json:"startedDateTime"`
	Time            int64   `json:"time"`
	Request         *Request  `json:"request"`
	Response        *Response `json:"response"`
	Cache           Cache   `json:"cache"`
	Timings         Timings `json:"timings"`
	ServerIPAddress string  `json:"serverIPAddress,omitempty"`
	Connection      string  `json:"connection,omitempty"`
	Comment         string  `json:"comment,omitempty"`

	// Extension fields (all prefixed with an underscore per HAR convention).
	ResourceType       string            `json:"_resourceType,omitempty"`
	WebSocketMessages  []WebSocketMessage `json:"_webSocketMessages,omitempty"`
	Initiator          string            `json:"_initiator,omitempty"`
	SecurityDetails    map[string]interface{} `json:"_securityDetails,omitempty"`
	RequestBodySize    int64             `json:"_requestBodySize,omitempty"`
	ResponseBodySize   int64             `json:"_responseBodySize,omitempty"`
}

// Time wraps time.Time to force microsecond-lossless ISO 8601-with-offset
// serialization instead of Go's default RFC3339Nano (which trims trailing
// zero fractional digits and would silently change precision between
// re-serializations of the same timestamp).
type Time struct {
	time.Time
}

const isoMicros = "2006-01-02T15:04:05.000000Z07:00"

// MarshalJSON renders the timestamp with a fixed six-digit fractional
// second field, never trimmed, so round-tripping never loses
// microsecond precision.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(isoMicros))
}

// UnmarshalJSON parses any ISO 8601 offset timestamp HAR readers produce.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(isoMicros, s)
		if err != nil {
			return fmt.Errorf("har: invalid startedDateTime %q: %w", s, err)
		}
	}
	t.Time = parsed
	return nil
}

// Request is the detailed info about a performed HTTP request.
type Request struct {
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	HTTPVersion string    `json:"httpVersion"`
	Cookies     []Cookie  `json:"cookies"`
	Headers     []NVP     `json:"headers"`
	QueryString []NVP     `json:"queryString"`
	PostData    *PostData `json:"postData,omitempty"`
	HeadersSize int64     `json:"headersSize"`
	BodySize    int64     `json:"bodySize"`
	Comment     string    `json:"comment,omitempty"`
}

// Response is the detailed info about a received HTTP response.
type Response struct {
	Status      int      `json:"status"`
	StatusText  string   `json:"statusText"`
	HTTPVersion string   `json:"httpVersion"`
	Cookies     []Cookie `json:"cookies"`
	Headers     []NVP    `json:"headers"`
	Content     Content  `json:"content"`
	RedirectURL string   `json:"redirectURL"`
	HeadersSize int64    `json:"headersSize"`
	BodySize    int64    `json:"bodySize"`
	Comment     string   `json:"comment,omitempty"`
}

// Cookie is a single request or response cookie. Only
// name/value/path/domain/expires/httpOnly/secure are populated —
// Set-Cookie attributes beyond name=value are not parsed out further.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Expires  string `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// NVP is a generic name/value pair used for headers and query strings.
type NVP struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// PostData describes the body of a POST-like request. Text carries either
// the raw UTF-8 request body or, when it is not valid UTF-8, a base64
// encoding flagged via Encoding — mirroring Content's same convention.
type PostData struct {
	MimeType string      `json:"mimeType"`
	Params   []PostParam `json:"params,omitempty"`
	Text     []byte      `json:"text"`
	Comment  string      `json:"comment,omitempty"`
}

type postDataJSON struct {
	MimeType string      `json:"mimeType"`
	Params   []PostParam `json:"params,omitempty"`
	Text     string      `json:"text"`
	Encoding string      `json:"encoding,omitempty"`
	Comment  string      `json:"comment,omitempty"`
}

// MarshalJSON emits Text as plain UTF-8 when valid, otherwise base64 with
// an explicit encoding marker.
func (p PostData) MarshalJSON() ([]byte, error) {
	pj := postDataJSON{MimeType: p.MimeType, Params: p.Params, Comment: p.Comment}
	if utf8.Valid(p.Text) {
		pj.Text = string(p.Text)
	} else {
		pj.Text = base64.StdEncoding.EncodeToString(p.Text)
		pj.Encoding = "base64"
	}
	return json.Marshal(pj)
}

// UnmarshalJSON decodes Text according to the optional encoding marker.
func (p *PostData) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var pj postDataJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.MimeType = pj.MimeType
	p.Params = pj.Params
	p.Comment = pj.Comment
	if pj.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(pj.Text)
		if err != nil {
			return fmt.Errorf("har: invalid base64 postData.text: %w", err)
		}
		p.Text = decoded
	} else {
		p.Text = []byte(pj.Text)
	}
	return nil
}

// PostParam is one URL-encoded or multipart form field.
type PostParam struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// Content describes the response body. Like PostData, Text is base64 when
// Encoding == "base64" and plain UTF-8 otherwise; the zero value (no body
// retrieved) omits Text entirely.
type Content struct {
	Size        int64  `json:"size"`
	Compression int64  `json:"compression,omitempty"`
	MimeType    string `json:"mimeType"`
	Text        []byte `json:"-"`
	HasText     bool   `json:"-"`
	Encoding    string `json:"encoding,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

type contentJSON struct {
	Size        int64  `json:"size"`
	Compression int64  `json:"compression,omitempty"`
	MimeType    string `json:"mimeType"`
	Text        string `json:"text,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// MarshalJSON omits Text entirely when no body was retrieved (HasText ==
// false), rather than emitting an empty string — distinct from "body was
// empty but retrieved".
func (c Content) MarshalJSON() ([]byte, error) {
	cj := contentJSON{
		Size:        c.Size,
		Compression: c.Compression,
		MimeType:    c.MimeType,
		Comment:     c.Comment,
	}
	if c.HasText {
		if c.Encoding == "base64" {
			cj.Text = base64.StdEncoding.EncodeToString(c.Text)
		} else {
			cj.Text = string(c.Text)
		}
		cj.Encoding = c.Encoding
	}
	return json.Marshal(cj)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var cj contentJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	c.Size = cj.Size
	c.Compression = cj.Compression
	c.MimeType = cj.MimeType
	c.Encoding = cj.Encoding
	c.Comment = cj.Comment
	if cj.Text == "" {
		c.HasText = false
		c.Text = nil
		return nil
	}
	c.HasText = true
	if cj.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(cj.Text)
		if err != nil {
			return fmt.Errorf("har: invalid base64 content.text: %w", err)
		}
		c.Text = decoded
	} else {
		c.Text = []byte(cj.Text)
	}
	return nil
}

// Cache describes cache-entry state surrounding the request, populated
// only when the transport reports a cache hit, service-worker response,
// or 304.
type Cache struct {
	BeforeRequest *CacheObject `json:"beforeRequest,omitempty"`
	AfterRequest  *CacheObject `json:"afterRequest,omitempty"`
	Comment       string       `json:"comment,omitempty"`
}

// CacheObject is used by both Cache.BeforeRequest and Cache.AfterRequest.
type CacheObject struct {
	Expires    string `json:"expires,omitempty"`
	LastAccess string `json:"lastAccess"`
	ETag       string `json:"eTag"`
	HitCount   int64  `json:"hitCount"`
	Comment    string `json:"comment,omitempty"`
}

// Timings breaks down the request/response round trip. -1 marks a phase
// that does not apply to this entry.
type Timings struct {
	Blocked int64  `json:"blocked,omitempty"`
	DNS     int64  `json:"dns,omitempty"`
	Connect int64  `json:"connect,omitempty"`
	Send    int64  `json:"send"`
	Wait    int64  `json:"wait"`
	Receive int64  `json:"receive"`
	SSL     int64  `json:"ssl,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Total sums the non-negative timing phases, per the HAR spec's
// definition of entry.time.
func (t Timings) Total() int64 {
	var sum int64
	for _, v := range []int64{t.Blocked, t.DNS, t.Connect, t.Send, t.Wait, t.Receive, t.SSL} {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// WebSocketMessage is one frame of a flushed WebSocket connection.
type WebSocketMessage struct {
	Type   string  `json:"type"`
	Time   float64 `json:"time"`
	Opcode int     `json:"opcode"`
	Data   string  `json:"data"`
}

const (
	// WSMessageSend marks an outbound frame.
	WSMessageSend = "send"
	// WSMessageReceive marks an inbound frame.
	WSMessageReceive = "receive"
)
