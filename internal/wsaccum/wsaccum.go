// Package wsaccum accumulates WebSocket frames per connection and flushes
// them into a synthesized HAR entry on close.
//
// Grounded on internal/capture/websocket.go's connectionState,
// trackConnOpen/trackConnClose, evictWSByCount/evictWSForMemory bounded
// drop-oldest discipline. Frame opcodes reuse github.com/gorilla/websocket's
// numeric constants instead of re-declaring them, following the precedent
// set by LumenPrima-tr-engine's direct dependency on that package.
package wsaccum

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/harcapture/engine/internal/adapter"
	"github.com/harcapture/engine/internal/har"
	"github.com/harcapture/engine/internal/redact"
)

// Re-exported opcode constants so callers never need to import
// gorilla/websocket themselves just to label a frame's opcode.
const (
	OpcodeText   = websocket.TextMessage
	OpcodeBinary = websocket.BinaryMessage
	OpcodeClose  = websocket.CloseMessage
	OpcodePing   = websocket.PingMessage
	OpcodePong   = websocket.PongMessage
)

// Direction of a single frame.
type Direction int

const (
	// DirectionSend is an outbound frame.
	DirectionSend Direction = iota
	// DirectionReceive is an inbound frame.
	DirectionReceive
)

type frame struct {
	dir    Direction
	wallMs float64 // epoch seconds, stored as float per HAR's `time` field
	opcode int
	data   string
}

// connection tracks one in-flight WebSocket connection's accumulated
// frames and handshake metadata.
type connection struct {
	url                string
	handshakeTimestamp float64 // transport-relative
	handshakeWall      float64 // epoch seconds
	requestHeaders     []adapter.Header
	responseStatus     int
	responseStatusText string
	responseHeaders    []adapter.Header
	frames             []frame
	capDrops           int
}

// Accumulator owns one connection map, keyed by request id.
type Accumulator struct {
	mu          sync.Mutex
	conns       map[adapter.RequestID]*connection
	maxFrames   int
	redactor    *redact.Engine
}

// New creates an Accumulator. maxFrames of 0 means unbounded per
// connection; redactor may be redact.Noop() when no rules are active.
func New(maxFrames int, redactor *redact.Engine) *Accumulator {
	if redactor == nil {
		redactor = redact.Noop()
	}
	return &Accumulator{
		conns:     make(map[adapter.RequestID]*connection),
		maxFrames: maxFrames,
		redactor:  redactor,
	}
}

// OnCreated registers a new connection.
func (a *Accumulator) OnCreated(evt adapter.WSCreated) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns[evt.ID] = &connection{url: evt.URL}
}

// OnHandshakeRequest fills in the upgrade-request metadata.
func (a *Accumulator) OnHandshakeRequest(evt adapter.WSHandshakeRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.getOrCreate(evt.ID)
	c.requestHeaders = evt.Headers
	c.handshakeTimestamp = evt.Timestamp
	c.handshakeWall = evt.WallTime
}

// OnHandshakeResponse fills in the upgrade-response metadata.
func (a *Accumulator) OnHandshakeResponse(evt adapter.WSHandshakeResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.getOrCreate(evt.ID)
	c.responseStatus = evt.Status
	c.responseStatusText = evt.StatusText
	c.responseHeaders = evt.Headers
}

// AddFrame records one frame, applying body redaction if configured and
// enforcing the bounded drop-oldest queue. Wall-clock time is computed as
// handshakeWall + (ts - handshakeTimestamp).
func (a *Accumulator) AddFrame(id adapter.RequestID, dir Direction, ts float64, opcode int, data string) {
	if a.redactor.HasBodyPatterns() {
		data = a.redactor.RedactFrame(data)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.getOrCreate(id)

	wall := c.handshakeWall + (ts - c.handshakeTimestamp)
	f := frame{dir: dir, wallMs: wall, opcode: opcode, data: data}

	if a.maxFrames > 0 && len(c.frames) >= a.maxFrames {
		c.frames = c.frames[1:]
		c.capDrops++
	}
	c.frames = append(c.frames, f)
}

// IsWebSocket reports whether id belongs to a tracked WebSocket
// connection, used by the session to suppress ordinary HTTP handling.
func (a *Accumulator) IsWebSocket(id adapter.RequestID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.conns[id]
	return ok
}

// Flush removes the connection and returns a synthesized base entry
// (status 101, x-unknown MIME, HTTP/1.1) with its frames sorted
// ascending by time.
func (a *Accumulator) Flush(id adapter.RequestID) (*har.Entry, bool) {
	a.mu.Lock()
	c, ok := a.conns[id]
	if ok {
		delete(a.conns, id)
	}
	a.mu.Unlock()

	if !ok {
		return nil, false
	}

	sorted := make([]frame, len(c.frames))
	copy(sorted, c.frames)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].wallMs < sorted[j].wallMs })

	msgs := make([]har.WebSocketMessage, len(sorted))
	for i, f := range sorted {
		typ := har.WSMessageSend
		if f.dir == DirectionReceive {
			typ = har.WSMessageReceive
		}
		msgs[i] = har.WebSocketMessage{Type: typ, Time: f.wallMs, Opcode: f.opcode, Data: f.data}
	}

	entry := &har.Entry{
		Request: &har.Request{
			Method:      "GET",
			URL:         c.url,
			HTTPVersion: "HTTP/1.1",
			Headers:     headersToNVP(c.requestHeaders),
			QueryString: []har.NVP{},
			HeadersSize: har.Unknown,
			BodySize:    har.Unknown,
		},
		Response: &har.Response{
			Status:      statusOr101(c.responseStatus),
			StatusText:  c.responseStatusText,
			HTTPVersion: "HTTP/1.1",
			Headers:     headersToNVP(c.responseHeaders),
			Content:     har.Content{MimeType: "x-unknown", Size: har.Unknown},
			HeadersSize: har.Unknown,
			BodySize:    har.Unknown,
		},
		Timings:           har.Timings{Send: har.Unknown, Wait: har.Unknown, Receive: har.Unknown},
		WebSocketMessages: msgs,
		ResourceType:      "websocket",
	}
	return entry, true
}

func statusOr101(status int) int {
	if status == 0 {
		return 101
	}
	return status
}

// getOrCreate must be called with a.mu held.
func (a *Accumulator) getOrCreate(id adapter.RequestID) *connection {
	c, ok := a.conns[id]
	if !ok {
		c = &connection{}
		a.conns[id] = c
	}
	return c
}

func headersToNVP(headers []adapter.Header) []har.NVP {
	if len(headers) == 0 {
		return []har.NVP{}
	}
	out := make([]har.NVP, len(headers))
	for i, h := range headers {
		out[i] = har.NVP{Name: h.Name, Value: h.Value}
	}
	return out
}
