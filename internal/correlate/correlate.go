// Package correlate implements the request/response correlator: a
// map from transport request-id to a pending entry, completed and
// emitted when the matching response arrives.
//
// Grounded on internal/capture/query_dispatcher.go's map discipline
// (one mutex guarding a map; entries are either absent or fully
// populated, never torn) and on
// _examples/other_examples/4ac9e540_EdgeComet-engine__internal-render-har-collector.go.go's
// OnRequestWillBeSent/OnResponseReceived/convertTiming handler shape,
// including its -1-sentinel handling for unavailable timing phases.
package correlate

import (
	"sync"
	"time"

	"github.com/harcapture/engine/internal/adapter"
	"github.com/harcapture/engine/internal/har"
)

// PendingEntry is the runtime (non-wire) record held between
// request-will-be-sent and response-received for one request id.
type PendingEntry struct {
	Request         *har.Request
	StartedDateTime har.Time
	Initiator       string
	ResourceType    string
}

// Completed is the result of a successful correlation: the request side
// plus everything the response event carried.
type Completed struct {
	Entry        *har.Entry
	ResourceType string
}

// Correlator maps request-id to PendingEntry. Safe for concurrent use by
// multiple transport-thread callers.
type Correlator struct {
	mu      sync.Mutex
	pending map[adapter.RequestID]*PendingEntry
}

// New creates an empty Correlator.
func New() *Correlator {
	return &Correlator{pending: make(map[adapter.RequestID]*PendingEntry)}
}

// OnRequestSent idempotently inserts or updates the pending entry for id.
// The single mutex acts as the publication barrier: no caller ever
// observes a partially constructed *PendingEntry, regardless of which
// goroutine the transport happens to dispatch events from.
func (c *Correlator) OnRequestSent(evt adapter.RequestWillBeSent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[evt.ID] = &PendingEntry{
		Request:         requestFromEvent(evt),
		StartedDateTime: wallTimeToHarTime(evt.WallTime),
		Initiator:       evt.Initiator,
		ResourceType:    evt.ResourceType,
	}
}

// OnResponseReceived removes and returns the completed entry for id. If
// no pending entry exists (a stray response with no matching request,
// e.g. after a disable/enable race), ok is false and the event must be
// dropped by the caller.
func (c *Correlator) OnResponseReceived(resp adapter.ResponseReceived, resourceType string) (Completed, bool) {
	c.mu.Lock()
	pe, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		return Completed{}, false
	}

	rt := resourceType
	if rt == "" {
		rt = pe.ResourceType
	}

	entry := &har.Entry{
		StartedDateTime: pe.StartedDateTime,
		Request:         pe.Request,
		Response:        responseFromEvent(resp),
		Timings:         timingsFromEvent(resp.Timing),
		Initiator:       pe.Initiator,
		ResourceType:    rt,
		ServerIPAddress: resp.RemoteIPAddress,
		Connection:      resp.ConnectionID,
		RequestBodySize: pe.Request.BodySize,
	}
	entry.Time = entry.Timings.Total()
	entry.Cache = cacheFromEvent(resp)

	return Completed{Entry: entry, ResourceType: rt}, true
}

// Drop removes a pending entry without completing it, used when the
// session discovers a request will never get a matching response (e.g.
// loading-failed).
func (c *Correlator) Drop(id adapter.RequestID) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Pending reports the number of requests awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func requestFromEvent(evt adapter.RequestWillBeSent) *har.Request {
	req := &har.Request{
		Method:      evt.Method,
		URL:         evt.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     headersToNVP(evt.Headers),
		QueryString: queryStringFromURL(evt.URL),
		HeadersSize: har.Unknown,
		BodySize:    int64(len(evt.PostData)),
	}
	if len(evt.PostData) > 0 {
		req.PostData = &har.PostData{
			MimeType: evt.PostDataMime,
			Text:     evt.PostData,
		}
	}
	return req
}

func responseFromEvent(resp adapter.ResponseReceived) *har.Response {
	return &har.Response{
		Status:      resp.Status,
		StatusText:  resp.StatusText,
		HTTPVersion: "HTTP/1.1",
		Headers:     headersToNVP(resp.Headers),
		Content:     har.Content{MimeType: resp.MimeType, Size: har.Unknown},
		HeadersSize: har.Unknown,
		BodySize:    har.Unknown,
	}
}

func timingsFromEvent(t *adapter.Timing) har.Timings {
	if t == nil {
		return har.Timings{Send: har.Unknown, Wait: har.Unknown, Receive: har.Unknown}
	}
	return har.Timings{
		Blocked: toMs(t.Blocked),
		DNS:     toMs(t.DNS),
		Connect: toMs(t.Connect),
		SSL:     toMs(t.SSL),
		Send:    toMs(t.Send),
		Wait:    toMs(t.Wait),
		Receive: toMs(t.Receive),
	}
}

func toMs(v float64) int64 {
	if v == adapter.Unknown {
		return har.Unknown
	}
	return int64(v)
}

// cacheMinLastAccess is the sentinel value used for "no meaningful
// last-access time" when populating the cache field.
const cacheMinLastAccess = "0001-01-01T00:00:00.000000Z"

func cacheFromEvent(resp adapter.ResponseReceived) har.Cache {
	if resp.FromDiskCache || resp.FromServiceWorker || resp.Status == 304 {
		return har.Cache{
			BeforeRequest: &har.CacheObject{
				LastAccess: cacheMinLastAccess,
				ETag:       "",
				HitCount:   0,
			},
		}
	}
	return har.Cache{}
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

func queryStringFromURL(rawURL string) []har.NVP {
	idx := indexByte(rawURL, '?')
	if idx < 0 {
		return []har.NVP{}
	}
	query := rawURL[idx+1:]
	if fragIdx := indexByte(query, '#'); fragIdx >= 0 {
		query = query[:fragIdx]
	}
	if query == "" {
		return []har.NVP{}
	}
	pairs := splitAmp(query)
	out := make([]har.NVP, 0, len(pairs))
	for _, pair := range pairs {
		name, value := splitEquals(pair)
		out = append(out, har.NVP{Name: name, Value: value})
	}
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func splitAmp(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '&' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitEquals(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func wallTimeToHarTime(epochSeconds float64) har.Time {
	sec := int64(epochSeconds)
	nsec := int64((epochSeconds - float64(sec)) * 1e9)
	return har.Time{Time: time.Unix(sec, nsec).UTC()}
}
