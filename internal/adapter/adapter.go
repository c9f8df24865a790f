// Package adapter defines the abstract transport boundary the capture
// engine consumes. Nothing in this package talks to a real browser — it
// is the fixed event surface and control-call contract the engine needs,
// grounded on the abstract-interface style of
// internal/capture/interfaces.go (SchemaStore, CSPGenerator: small
// interfaces with documented ownership, implemented elsewhere).
//
// A real CDP-backed or fallback-network-API implementation is out of
// scope for this module; see internal/fallback for a deterministic
// in-process double used by tests and the CLI demo.
package adapter

import "context"

// RequestID is the transport-scoped identifier correlating request and
// response events for one HTTP exchange or one WebSocket connection.
type RequestID string

// Header is a single wire header as reported by the transport, prior to
// any redaction.
type Header struct {
	Name  string
	Value string
}

// RequestWillBeSent is fired when the transport observes a new outgoing
// request. Redirects arrive as the RedirectResponse field on the next
// request-will-be-sent for the same logical navigation.
type RequestWillBeSent struct {
	ID              RequestID
	Method          string
	URL             string
	Headers         []Header
	PostData        []byte
	PostDataMime    string
	Timestamp       float64 // transport-relative seconds, monotonic within a session
	WallTime        float64 // epoch seconds matching Timestamp
	Initiator       string
	ResourceType    string
	RedirectResponse *ResponseReceived
}

// ResponseReceived is fired when response headers are available.
type ResponseReceived struct {
	ID               RequestID
	Status           int
	StatusText       string
	Headers          []Header
	MimeType         string
	Timestamp        float64
	Timing           *Timing
	RemoteIPAddress  string
	ConnectionID     string
	FromDiskCache    bool
	FromServiceWorker bool
}

// Timing mirrors the CDP ResourceTiming phases the engine cares about.
// Any field equal to Unknown means the phase does not apply, mapped
// straight through to har.Timings' -1 sentinel.
type Timing struct {
	Blocked float64
	DNS     float64
	Connect float64
	SSL     float64
	Send    float64
	Wait    float64
	Receive float64
}

// Unknown is the adapter-side sentinel for "this timing phase does not
// apply", matching har.Unknown on the wire.
const Unknown = -1.0

// LoadingFinished is fired when the response body is fully available.
// The engine retrieves bodies eagerly on ResponseReceived rather than
// waiting for this event, since buffers may already be evicted by the
// time loading finishes; LoadingFinished is still forwarded in case a
// future adapter needs it for accounting.
type LoadingFinished struct {
	ID        RequestID
	Timestamp float64
	BodySize  int64
}

// LoadingFailed is fired when a request fails before completion.
type LoadingFailed struct {
	ID        RequestID
	Timestamp float64
	ErrorText string
	Canceled  bool
}

// WSCreated is fired when a WebSocket connection begins.
type WSCreated struct {
	ID  RequestID
	URL string
}

// WSHandshakeRequest carries the upgrade request headers.
type WSHandshakeRequest struct {
	ID        RequestID
	Headers   []Header
	Timestamp float64
	WallTime  float64
}

// WSHandshakeResponse carries the upgrade response.
type WSHandshakeResponse struct {
	ID         RequestID
	Status     int
	StatusText string
	Headers    []Header
}

// WSFrame is one sent or received WebSocket frame.
type WSFrame struct {
	ID        RequestID
	Timestamp float64
	Opcode    int
	Data      string
}

// WSClosed is fired when a WebSocket connection ends.
type WSClosed struct {
	ID RequestID
}

// DOMContentEventFired reports the DOMContentLoaded milestone.
type DOMContentEventFired struct {
	TimestampMs int64
}

// LoadEventFired reports the window load milestone.
type LoadEventFired struct {
	TimestampMs int64
}

// EventHandlers is the set of callbacks the adapter invokes as it
// observes transport activity. A session wires exactly one of these
// structs per capture. Handlers must not block the adapter for long —
// the session dispatches expensive work (body retrieval) onto its own
// worker pool.
type EventHandlers struct {
	OnRequestWillBeSent   func(RequestWillBeSent)
	OnResponseReceived    func(ResponseReceived)
	OnLoadingFinished     func(LoadingFinished)
	OnLoadingFailed       func(LoadingFailed)
	OnWSCreated           func(WSCreated)
	OnWSHandshakeRequest  func(WSHandshakeRequest)
	OnWSHandshakeResponse func(WSHandshakeResponse)
	OnWSFrameSent         func(WSFrame)
	OnWSFrameReceived     func(WSFrame)
	OnWSClosed            func(WSClosed)
	OnDOMContentEventFired func(DOMContentEventFired)
	OnLoadEventFired      func(LoadEventFired)
}

// Adapter is the abstract transport the engine consumes. Concrete
// implementations (CDP-backed, fallback) are external collaborators; the
// engine names only this interface.
type Adapter interface {
	// Subscribe registers the engine's event handlers. Must be called
	// before EnableNetwork/EnablePage.
	Subscribe(handlers EventHandlers)

	// EnableNetwork turns on network event delivery.
	EnableNetwork(ctx context.Context) error
	// DisableNetwork turns off network event delivery.
	DisableNetwork(ctx context.Context) error
	// EnablePage turns on page lifecycle event delivery.
	EnablePage(ctx context.Context) error
	// DisablePage turns off page lifecycle event delivery.
	DisablePage(ctx context.Context) error

	// GetResponseBody retrieves the body for a completed response. base64
	// is true when text is base64-encoded binary content. A non-nil error
	// commonly means the browser already evicted the buffer.
	GetResponseBody(ctx context.Context, id RequestID) (text string, base64 bool, err error)
}

// Factory selects a concrete Adapter implementation. The core never
// names a concrete variant directly — it only ever depends on this
// interface, so a new transport can be added without touching callers.
type Factory interface {
	// NewAdapter constructs an Adapter, honoring forceFallback when the
	// caller has no DevTools channel available or wants to force the
	// non-CDP path.
	NewAdapter(ctx context.Context, forceFallback bool) (Adapter, error)
}
