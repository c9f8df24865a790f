// Package session implements the capture session orchestrator: the
// top-level state machine wiring the correlator, WebSocket accumulator,
// body pipeline, redactor, URL/MIME filters, and stream writer to one
// adapter.Adapter.
//
// Grounded on internal/capture/capture-struct.go's lock hierarchy and
// lifecycleCallback/emitLifecycleEvent pattern (callback invoked outside
// the lock) — reused here as the unlock-before-callback discipline for
// EntryWritten, and on internal/streaming/stream.go's
// StreamState.EmitAlert for the same discipline applied to file I/O.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harcapture/engine/internal/adapter"
	"github.com/harcapture/engine/internal/bodypipeline"
	"github.com/harcapture/engine/internal/correlate"
	"github.com/harcapture/engine/internal/har"
	"github.com/harcapture/engine/internal/logx"
	"github.com/harcapture/engine/internal/match"
	"github.com/harcapture/engine/internal/redact"
	"github.com/harcapture/engine/internal/stream"
	"github.com/harcapture/engine/internal/validate"
	"github.com/harcapture/engine/internal/wsaccum"
)

// State is one point in the idle -> capturing <-> paused -> stopped ->
// disposed lifecycle a Session moves through.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StatePaused
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// EntryWrittenEvent is fired once per accepted entry, outside all
// internal locks.
type EntryWrittenEvent struct {
	EntryCount     int64
	EntryURL       string
	CurrentPageRef string
}

// Config is the full set of options a capture session can be started with.
type Config struct {
	CreatorName          string
	CreatorVersion       string
	ForceFallbackAdapter bool
	MaxResponseBodySize  int64
	URLIncludePatterns   []string
	URLExcludePatterns   []string
	OutputFilePath       string
	BrowserName          string
	BrowserVersion       string
	ResponseBodyScope    match.BodyScope
	ResponseBodyMimeFilter []string
	EnableCompression    bool
	SensitiveHeaders     []string
	SensitiveCookies     []string
	SensitiveQueryParams []string
	SensitiveBodyPatterns []string
	MaxWSFramesPerConnection int64
	MaxOutputFileSize    int64
	CustomMetadata       map[string]interface{}

	Logger         *logx.Logger
	OnEntryWritten func(EntryWrittenEvent)
}

// Session is the capture orchestrator. One Session wraps one adapter
// instance for the lifetime of a single capture.
type Session struct {
	cfg    Config
	adp    adapter.Adapter
	logger *logx.Logger

	stateMu sync.Mutex
	state   State

	paused atomic.Bool

	urlMatcher  *match.URLMatcher
	mimeMatcher *match.MIMEMatcher
	redactor    *redact.Engine
	corr        *correlate.Correlator
	ws          *wsaccum.Accumulator
	pipeline    *bodypipeline.Pipeline
	writer      *stream.Writer

	docMu          sync.Mutex
	doc            *har.Document
	currentPageRef string
	entryCount     int64

	wsOpenMu sync.Mutex
	wsOpen   map[adapter.RequestID]struct{}

	milestoneMu         sync.Mutex
	haveFirstRequest    bool
	firstRequestWallMs  int64
	haveContentLoad     bool
	onContentLoadMs     int64
	haveLoad            bool
	onLoadMs            int64
}

// New constructs a Session bound to adp, still in StateIdle. Start does
// the heavy lifting (validation, subcomponent construction, adapter
// wiring).
func New(cfg Config, adp adapter.Adapter) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = logx.Noop()
	}
	return &Session{
		cfg:    cfg,
		adp:    adp,
		logger: logger.WithComponent(logx.ComponentSession),
		state:  StateIdle,
		wsOpen: make(map[adapter.RequestID]struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) toValidateOptions() validate.Options {
	return validate.Options{
		EnableCompression:    s.cfg.EnableCompression,
		ForceFallbackAdapter: s.cfg.ForceFallbackAdapter,
		ResponseBodyScope:    s.cfg.ResponseBodyScope,
		MaxResponseBodySize:  s.cfg.MaxResponseBodySize,
		MaxWSFramesPerConn:   s.cfg.MaxWSFramesPerConnection,
		MaxOutputFileSize:    s.cfg.MaxOutputFileSize,
		OutputFilePath:       s.cfg.OutputFilePath,
		CreatorName:          s.cfg.CreatorName,
		URLIncludePatterns:   s.cfg.URLIncludePatterns,
		URLExcludePatterns:   s.cfg.URLExcludePatterns,
	}
}

// Start validates options, constructs every subcomponent, wires event
// handlers to the adapter, and enables network (and page) event
// delivery. initialPage may be nil.
func (s *Session) Start(ctx context.Context, initialPage *har.Page) error {
	s.stateMu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.stateMu.Unlock()
		return fmt.Errorf("session: start called from state %s", st)
	}
	s.stateMu.Unlock()

	if err := validate.AsError(validate.Validate(s.toValidateOptions())); err != nil {
		return err
	}

	var err error
	s.urlMatcher, err = match.NewURLMatcher(s.cfg.URLIncludePatterns, s.cfg.URLExcludePatterns)
	if err != nil {
		return fmt.Errorf("session: compiling url patterns: %w", err)
	}
	s.mimeMatcher = match.NewMIMEMatcher(s.cfg.ResponseBodyScope, s.cfg.ResponseBodyMimeFilter)

	s.redactor, err = redact.New(redact.Config{
		Headers:      s.cfg.SensitiveHeaders,
		Cookies:      s.cfg.SensitiveCookies,
		QueryParams:  s.cfg.SensitiveQueryParams,
		BodyPatterns: s.cfg.SensitiveBodyPatterns,
	})
	if err != nil {
		return fmt.Errorf("session: compiling redaction rules: %w", err)
	}

	s.corr = correlate.New()
	s.ws = wsaccum.New(int(s.cfg.MaxWSFramesPerConnection), s.redactor)
	s.pipeline = bodypipeline.New(bodypipeline.Options{
		Adapter:         s.adp,
		Redactor:        s.redactor,
		MaxResponseBody: s.cfg.MaxResponseBodySize,
		OnComplete:      func(id adapter.RequestID, entry *har.Entry) { s.deliverEntryCompleted(entry) },
	})

	var browser *har.Browser
	if s.cfg.BrowserName != "" {
		browser = &har.Browser{Name: s.cfg.BrowserName, Version: s.cfg.BrowserVersion}
	}
	creator := har.Creator{Name: s.cfg.CreatorName, Version: s.cfg.CreatorVersion}

	if s.cfg.OutputFilePath != "" {
		w, err := stream.New(s.cfg.OutputFilePath, creator, browser, s.cfg.MaxOutputFileSize, s.logger)
		if err != nil {
			return fmt.Errorf("session: constructing stream writer: %w", err)
		}
		if len(s.cfg.CustomMetadata) > 0 {
			w.SetCustom(s.cfg.CustomMetadata)
		}
		s.writer = w
		if initialPage != nil {
			w.AddPage(*initialPage)
			s.currentPageRef = initialPage.ID
		}
	} else {
		doc := har.NewDocument(s.cfg.CreatorName, s.cfg.CreatorVersion)
		doc.Browser = browser
		doc.Custom = s.cfg.CustomMetadata
		if initialPage != nil {
			doc.AddPage(*initialPage)
			s.currentPageRef = initialPage.ID
		}
		s.doc = doc
	}

	s.adp.Subscribe(adapter.EventHandlers{
		OnRequestWillBeSent:    func(e adapter.RequestWillBeSent) { s.safe("request-will-be-sent", func() { s.onRequestWillBeSent(e) }) },
		OnResponseReceived:     func(e adapter.ResponseReceived) { s.safe("response-received", func() { s.onResponseReceived(e) }) },
		OnLoadingFinished:      func(e adapter.LoadingFinished) { s.safe("loading-finished", func() { s.onLoadingFinished(e) }) },
		OnLoadingFailed:        func(e adapter.LoadingFailed) { s.safe("loading-failed", func() { s.onLoadingFailed(e) }) },
		OnWSCreated:            func(e adapter.WSCreated) { s.safe("ws-created", func() { s.onWSCreated(e) }) },
		OnWSHandshakeRequest:   func(e adapter.WSHandshakeRequest) { s.safe("ws-handshake-request", func() { s.ws.OnHandshakeRequest(e) }) },
		OnWSHandshakeResponse:  func(e adapter.WSHandshakeResponse) { s.safe("ws-handshake-response", func() { s.ws.OnHandshakeResponse(e) }) },
		OnWSFrameSent:          func(e adapter.WSFrame) { s.safe("ws-frame-sent", func() { s.ws.AddFrame(e.ID, wsaccum.DirectionSend, e.Timestamp, e.Opcode, e.Data) }) },
		OnWSFrameReceived:      func(e adapter.WSFrame) { s.safe("ws-frame-received", func() { s.ws.AddFrame(e.ID, wsaccum.DirectionReceive, e.Timestamp, e.Opcode, e.Data) }) },
		OnWSClosed:             func(e adapter.WSClosed) { s.safe("ws-closed", func() { s.onWSClosed(e) }) },
		OnDOMContentEventFired: func(e adapter.DOMContentEventFired) { s.safe("dom-content-event-fired", func() { s.onDOMContentEventFired(e) }) },
		OnLoadEventFired:       func(e adapter.LoadEventFired) { s.safe("load-event-fired", func() { s.onLoadEventFired(e) }) },
	})

	if err := s.adp.EnableNetwork(ctx); err != nil {
		return fmt.Errorf("session: enabling network domain: %w", err)
	}
	if err := s.adp.EnablePage(ctx); err != nil {
		s.logger.Warn("enabling page domain failed", logx.Err(err))
	}

	s.stateMu.Lock()
	s.state = StateCapturing
	s.stateMu.Unlock()
	return nil
}

// safe wraps one event handler body so a panic is caught, logged, and
// never propagated into the transport's own goroutine
// exception-safety requirement and the error taxonomy's "transport
// failure during event handling" entry.
func (s *Session) safe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in event handler", logx.Err(fmt.Errorf("%s: %v", name, r)))
		}
	}()
	fn()
}

// Pause drops all EntryCompleted deliveries until Resume. Idempotent.
func (s *Session) Pause() {
	s.paused.Store(true)
	s.stateMu.Lock()
	if s.state == StateCapturing {
		s.state = StatePaused
	}
	s.stateMu.Unlock()
}

// Resume re-enables EntryCompleted delivery. Idempotent.
func (s *Session) Resume() {
	s.paused.Store(false)
	s.stateMu.Lock()
	if s.state == StatePaused {
		s.state = StateCapturing
	}
	s.stateMu.Unlock()
}

// NewPage appends a page and records it as the current page reference,
// so subsequent entries get pageref set.
func (s *Session) NewPage(ref, title string) error {
	st := s.State()
	if st == StateIdle || st == StateDisposed {
		return fmt.Errorf("session: new_page called from state %s", st)
	}

	page := har.Page{
		ID:              ref,
		Title:           title,
		StartedDateTime: time.Now().UTC().Format(time.RFC3339Nano),
	}

	s.docMu.Lock()
	s.currentPageRef = ref
	if s.writer != nil {
		s.writer.AddPage(page)
	} else {
		s.doc.AddPage(page)
	}
	s.docMu.Unlock()
	return nil
}

// onRequestWillBeSent handles request-will-be-sent. A non-nil
// RedirectResponse means this event also carries the redirect-chain
// predecessor's response: the prior request (same id) is completed and
// emitted before the new pending entry for the same id is recorded.
// WebSocket upgrade requests fire both this generic event and
// wsaccum's own WS-specific events for the same id — once
// IsWebSocket reports true for an id, ordinary HTTP correlation for
// that id is suppressed entirely.
func (s *Session) onRequestWillBeSent(evt adapter.RequestWillBeSent) {
	if s.ws.IsWebSocket(evt.ID) {
		return
	}

	if evt.RedirectResponse != nil {
		s.completeAndEmit(evt.ID, *evt.RedirectResponse, "")
	}

	s.milestoneMu.Lock()
	if !s.haveFirstRequest {
		s.haveFirstRequest = true
		s.firstRequestWallMs = int64(evt.WallTime * 1000)
	}
	s.milestoneMu.Unlock()

	s.corr.OnRequestSent(evt)
}

func (s *Session) onResponseReceived(evt adapter.ResponseReceived) {
	s.completeAndEmit(evt.ID, evt, "")
}

// completeAndEmit correlates a response, letting the correlator compute
// entry.time as the sum of the populated timing phases, and routes the
// result either straight to delivery (no body needed) or through the
// body pipeline. onResponseReceived calls this directly for every
// response event, so the IsWebSocket guard here is what suppresses the
// generic response event of a WebSocket upgrade.
func (s *Session) completeAndEmit(id adapter.RequestID, resp adapter.ResponseReceived, resourceType string) {
	if s.ws.IsWebSocket(id) {
		return
	}

	completed, ok := s.corr.OnResponseReceived(resp, resourceType)
	if !ok {
		return
	}
	entry := completed.Entry
	s.applyRedaction(entry)

	// Status 204/304 and MIME-filter rejects skip the body queue.
	if entry.Response.Status == 204 || entry.Response.Status == 304 {
		s.deliverEntryCompleted(entry)
		return
	}
	if !s.mimeMatcher.ShouldRetrieveBody(entry.Response.Content.MimeType) {
		s.deliverEntryCompleted(entry)
		return
	}

	s.pipeline.Submit(id, entry)
}

// applyRedaction scrubs headers, cookies, and query parameters on both
// sides of the exchange, plus the request URL's query string, before the
// entry ever reaches the writer or in-memory store — redaction happens
// at capture time and §4.2.
func (s *Session) applyRedaction(entry *har.Entry) {
	if !s.redactor.HasRedactions() {
		return
	}
	if entry.Request != nil {
		entry.Request.Headers = fromRedactNVP(s.redactor.RedactHeaders(toRedactNVP(entry.Request.Headers)))
		entry.Request.Cookies = redactCookieSlice(s.redactor, entry.Request.Cookies)
		entry.Request.QueryString = fromRedactNVP(s.redactor.RedactQuery(toRedactNVP(entry.Request.QueryString)))
		entry.Request.URL = s.redactor.RedactURL(entry.Request.URL)
	}
	if entry.Response != nil {
		entry.Response.Headers = fromRedactNVP(s.redactor.RedactHeaders(toRedactNVP(entry.Response.Headers)))
		entry.Response.Cookies = redactCookieSlice(s.redactor, entry.Response.Cookies)
	}
}

func toRedactNVP(nvps []har.NVP) []redact.NVP {
	out := make([]redact.NVP, len(nvps))
	for i, n := range nvps {
		out[i] = redact.NVP{Name: n.Name, Value: n.Value}
	}
	return out
}

func fromRedactNVP(nvps []redact.NVP) []har.NVP {
	out := make([]har.NVP, len(nvps))
	for i, n := range nvps {
		out[i] = har.NVP{Name: n.Name, Value: n.Value}
	}
	return out
}

func redactCookieSlice(e *redact.Engine, cookies []har.Cookie) []har.Cookie {
	if len(cookies) == 0 {
		return cookies
	}
	asNVP := make([]redact.NVP, len(cookies))
	for i, c := range cookies {
		asNVP[i] = redact.NVP{Name: c.Name, Value: c.Value}
	}
	redacted := e.RedactCookies(asNVP)
	out := make([]har.Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = c
		out[i].Value = redacted[i].Value
	}
	return out
}

func (s *Session) onLoadingFinished(evt adapter.LoadingFinished) {
	// Bodies are retrieved eagerly at response-received, so this event
	// needs no further action here.
}

func (s *Session) onLoadingFailed(evt adapter.LoadingFailed) {
	s.corr.Drop(evt.ID)
}

func (s *Session) onWSCreated(evt adapter.WSCreated) {
	s.ws.OnCreated(evt)
	s.wsOpenMu.Lock()
	s.wsOpen[evt.ID] = struct{}{}
	s.wsOpenMu.Unlock()
}

func (s *Session) onWSClosed(evt adapter.WSClosed) {
	s.wsOpenMu.Lock()
	delete(s.wsOpen, evt.ID)
	s.wsOpenMu.Unlock()

	if entry, ok := s.ws.Flush(evt.ID); ok {
		s.deliverEntryCompleted(entry)
	}
}

func (s *Session) onDOMContentEventFired(evt adapter.DOMContentEventFired) {
	s.milestoneMu.Lock()
	defer s.milestoneMu.Unlock()
	s.haveContentLoad = true
	s.onContentLoadMs = evt.TimestampMs - s.firstRequestWallMs
}

func (s *Session) onLoadEventFired(evt adapter.LoadEventFired) {
	s.milestoneMu.Lock()
	defer s.milestoneMu.Unlock()
	s.haveLoad = true
	s.onLoadMs = evt.TimestampMs - s.firstRequestWallMs
}

// deliverEntryCompleted is the EntryCompleted handler: pause-check, URL
// filter, pageref assignment, dispatch to the writer or
// the in-memory list, and EntryWritten delivery outside the lock.
func (s *Session) deliverEntryCompleted(entry *har.Entry) {
	if s.paused.Load() {
		return
	}
	if entry.Request != nil && !s.urlMatcher.ShouldCapture(entry.Request.URL) {
		return
	}

	s.docMu.Lock()
	pageRef := s.currentPageRef
	entry.PageRef = pageRef

	s.writeEntryLocked(entry)
	s.entryCount++
	count := s.entryCount
	cb := s.cfg.OnEntryWritten
	s.docMu.Unlock()

	if cb != nil {
		url := ""
		if entry.Request != nil {
			url = entry.Request.URL
		}
		cb(EntryWrittenEvent{EntryCount: count, EntryURL: url, CurrentPageRef: pageRef})
	}
}

// writeEntryLocked must be called with docMu held.
func (s *Session) writeEntryLocked(entry *har.Entry) {
	if s.writer != nil {
		s.writer.WriteEntry(entry)
		return
	}
	s.doc.AddEntry(entry)
}

// Stop disables adapter domains, drains body workers (10s timeout),
// flushes unclosed WebSocket connections, records page timings, and
// finalizes the stream writer (including compression). Returns the
// effective output path, which is empty in in-memory mode. Idempotent.
func (s *Session) Stop(ctx context.Context) (string, error) {
	s.stateMu.Lock()
	switch s.state {
	case StateStopped, StateDisposed:
		st := s.state
		s.stateMu.Unlock()
		if st == StateStopped && s.writer != nil {
			if s.cfg.EnableCompression {
				return s.writer.Path() + ".gz", nil
			}
			return s.writer.Path(), nil
		}
		return "", nil
	case StateIdle:
		s.stateMu.Unlock()
		return "", errors.New("session: stop called before start")
	}
	s.state = StateStopped
	s.stateMu.Unlock()

	disableCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := s.adp.DisableNetwork(disableCtx); err != nil {
		s.logger.Warn("disable_network failed", logx.Err(err))
	}
	if err := s.adp.DisablePage(disableCtx); err != nil {
		s.logger.Warn("disable_page failed", logx.Err(err))
	}
	cancel()

	drainCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	s.pipeline.Drain(drainCtx)
	cancel2()
	s.pipeline.Close()

	s.wsOpenMu.Lock()
	open := make([]adapter.RequestID, 0, len(s.wsOpen))
	for id := range s.wsOpen {
		open = append(open, id)
	}
	s.wsOpen = make(map[adapter.RequestID]struct{})
	s.wsOpenMu.Unlock()
	for _, id := range open {
		if entry, ok := s.ws.Flush(id); ok {
			s.deliverEntryCompleted(entry)
		}
	}

	s.applyPageTimings()

	counters := s.redactor.Counters()
	s.logger.Info(fmt.Sprintf("redaction audit: body_redactions=%d ws_redactions=%d bodies_skipped=%d",
		counters.BodyRedactions, counters.WSRedactions, counters.BodiesSkipped))

	if s.writer != nil {
		s.writer.FlushBarrier()
		path, err := s.writer.Close(s.cfg.EnableCompression)
		if err != nil {
			s.logger.Warn("stream close failed", logx.Err(err))
		}
		return path, nil
	}
	return "", nil
}

// applyPageTimings records the onContentLoad/onLoad offsets discovered
// from the adapter's DOMContentEventFired/LoadEventFired milestones onto
// the current page's stop() step.
func (s *Session) applyPageTimings() {
	s.milestoneMu.Lock()
	haveContentLoad, contentLoadMs := s.haveContentLoad, s.onContentLoadMs
	haveLoad, loadMs := s.haveLoad, s.onLoadMs
	s.milestoneMu.Unlock()

	if !haveContentLoad && !haveLoad {
		return
	}

	timings := har.PageTimings{OnContentLoad: har.Unknown, OnLoad: har.Unknown}
	if haveContentLoad {
		timings.OnContentLoad = contentLoadMs
	}
	if haveLoad {
		timings.OnLoad = loadMs
	}

	s.docMu.Lock()
	pageRef := s.currentPageRef
	s.docMu.Unlock()
	if pageRef == "" {
		return
	}

	if s.writer != nil {
		s.writer.SetPageTimings(pageRef, timings)
		return
	}

	s.docMu.Lock()
	for i := range s.doc.Pages {
		if s.doc.Pages[i].ID == pageRef {
			s.doc.Pages[i].PageTimings = timings
			break
		}
	}
	s.docMu.Unlock()
}

// Dispose releases any resources Stop did not already release.
// Idempotent; safe to call whether or not Stop ran first.
func (s *Session) Dispose() error {
	s.stateMu.Lock()
	if s.state == StateDisposed {
		s.stateMu.Unlock()
		return nil
	}
	wasStopped := s.state == StateStopped
	s.state = StateDisposed
	s.stateMu.Unlock()

	if !wasStopped && s.pipeline != nil {
		s.pipeline.Close()
	}
	return nil
}

// GetHAR returns a live snapshot. In streaming mode, the file is the
// authoritative store, so only metadata is returned (an empty entries
// list); otherwise a structurally independent copy of the in-memory
// document is returned.
func (s *Session) GetHAR() har.Har {
	if s.writer != nil {
		return har.Har{
			Log: har.Log{
				Version: har.HARVersion,
				Creator: har.Creator{Name: s.cfg.CreatorName, Version: s.cfg.CreatorVersion},
				Entries: []*har.Entry{},
			},
		}
	}

	s.docMu.Lock()
	defer s.docMu.Unlock()
	snapshot := s.doc.Har()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot
	}
	var independent har.Har
	if err := json.Unmarshal(data, &independent); err != nil {
		return snapshot
	}
	return independent
}
