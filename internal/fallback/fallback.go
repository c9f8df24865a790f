// Package fallback provides a deterministic, in-process double
// implementing adapter.Adapter by replaying a scripted sequence of
// events. It is not the real CDP or cross-browser network-API
// transport — both are explicitly out of scope — but a
// test/demo double in the same test-fixture style internal/capture's
// interfaces.go uses (small interfaces documented as meant to be
// implemented by fakes in tests).
package fallback

import (
	"context"
	"sync"

	"github.com/harcapture/engine/internal/adapter"
)

// Step is one scripted transport event. Steps run in order, synchronously,
// when EnableNetwork is first called — there is no real async
// transport to simulate delay against, so determinism wins over realism.
type Step func(adapter.EventHandlers)

// Body is a scripted response to GetResponseBody.
type Body struct {
	Text   string
	Base64 bool
	Err    error
}

// Adapter replays a fixed Step script and answers GetResponseBody from a
// fixed body table.
type Adapter struct {
	mu       sync.Mutex
	handlers adapter.EventHandlers
	steps    []Step
	bodies   map[adapter.RequestID]Body

	networkEnabled bool
	pageEnabled    bool
}

// New builds a fallback Adapter that will replay all steps, page steps
// included, once network delivery is enabled, answering GetResponseBody
// from bodies. EnablePage only records the page-enabled flag.
func New(steps []Step, bodies map[adapter.RequestID]Body) *Adapter {
	if bodies == nil {
		bodies = map[adapter.RequestID]Body{}
	}
	return &Adapter{steps: steps, bodies: bodies}
}

func (a *Adapter) Subscribe(handlers adapter.EventHandlers) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = handlers
}

// EnableNetwork replays every scripted step against the subscribed
// handlers, in order. Real adapters would deliver events asynchronously
// from here on; this fake is synchronous and deterministic by design.
func (a *Adapter) EnableNetwork(ctx context.Context) error {
	a.mu.Lock()
	if a.networkEnabled {
		a.mu.Unlock()
		return nil
	}
	a.networkEnabled = true
	handlers := a.handlers
	steps := a.steps
	a.mu.Unlock()

	for _, step := range steps {
		step(handlers)
	}
	return nil
}

func (a *Adapter) DisableNetwork(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.networkEnabled = false
	return nil
}

func (a *Adapter) EnablePage(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pageEnabled = true
	return nil
}

func (a *Adapter) DisablePage(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pageEnabled = false
	return nil
}

func (a *Adapter) GetResponseBody(ctx context.Context, id adapter.RequestID) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.bodies[id]
	if !ok {
		return "", false, errNoBody{id: id}
	}
	if b.Err != nil {
		return "", false, b.Err
	}
	return b.Text, b.Base64, nil
}

type errNoBody struct{ id adapter.RequestID }

func (e errNoBody) Error() string {
	return "fallback: no resource with given identifier: " + string(e.id)
}

// --- Step constructors, one per adapter.EventHandlers callback ---

func StepRequestWillBeSent(e adapter.RequestWillBeSent) Step {
	return func(h adapter.EventHandlers) {
		if h.OnRequestWillBeSent != nil {
			h.OnRequestWillBeSent(e)
		}
	}
}

func StepResponseReceived(e adapter.ResponseReceived) Step {
	return func(h adapter.EventHandlers) {
		if h.OnResponseReceived != nil {
			h.OnResponseReceived(e)
		}
	}
}

func StepLoadingFinished(e adapter.LoadingFinished) Step {
	return func(h adapter.EventHandlers) {
		if h.OnLoadingFinished != nil {
			h.OnLoadingFinished(e)
		}
	}
}

func StepLoadingFailed(e adapter.LoadingFailed) Step {
	return func(h adapter.EventHandlers) {
		if h.OnLoadingFailed != nil {
			h.OnLoadingFailed(e)
		}
	}
}

func StepWSCreated(e adapter.WSCreated) Step {
	return func(h adapter.EventHandlers) {
		if h.OnWSCreated != nil {
			h.OnWSCreated(e)
		}
	}
}

func StepWSHandshakeRequest(e adapter.WSHandshakeRequest) Step {
	return func(h adapter.EventHandlers) {
		if h.OnWSHandshakeRequest != nil {
			h.OnWSHandshakeRequest(e)
		}
	}
}

func StepWSHandshakeResponse(e adapter.WSHandshakeResponse) Step {
	return func(h adapter.EventHandlers) {
		if h.OnWSHandshakeResponse != nil {
			h.OnWSHandshakeResponse(e)
		}
	}
}

func StepWSFrameSent(e adapter.WSFrame) Step {
	return func(h adapter.EventHandlers) {
		if h.OnWSFrameSent != nil {
			h.OnWSFrameSent(e)
		}
	}
}

func StepWSFrameReceived(e adapter.WSFrame) Step {
	return func(h adapter.EventHandlers) {
		if h.OnWSFrameReceived != nil {
			h.OnWSFrameReceived(e)
		}
	}
}

func StepWSClosed(e adapter.WSClosed) Step {
	return func(h adapter.EventHandlers) {
		if h.OnWSClosed != nil {
			h.OnWSClosed(e)
		}
	}
}

func StepDOMContentEventFired(e adapter.DOMContentEventFired) Step {
	return func(h adapter.EventHandlers) {
		if h.OnDOMContentEventFired != nil {
			h.OnDOMContentEventFired(e)
		}
	}
}

func StepLoadEventFired(e adapter.LoadEventFired) Step {
	return func(h adapter.EventHandlers) {
		if h.OnLoadEventFired != nil {
			h.OnLoadEventFired(e)
		}
	}
}

// Factory implements adapter.Factory by always returning a pre-built
// fallback Adapter, for wiring into cmd/harcapture's demo mode.
type Factory struct {
	Build func() *Adapter
}

func (f Factory) NewAdapter(ctx context.Context, forceFallback bool) (adapter.Adapter, error) {
	return f.Build(), nil
}
