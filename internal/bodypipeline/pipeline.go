// Package bodypipeline implements the body retrieval pipeline: a
// bounded job queue drained by a fixed worker pool, backed by a
// URL-keyed LRU cache.
//
// Grounded on internal/capture/query_dispatcher.go's channel-notified
// background-work pattern, generalized from a sync.Cond poll loop to a
// true bounded job channel + N workers, since genuine back-pressure (a
// blocking "wait" policy) is wanted rather than polling.
package bodypipeline

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/harcapture/engine/internal/adapter"
	"github.com/harcapture/engine/internal/har"
	"github.com/harcapture/engine/internal/redact"
)

// DefaultQueueCapacity is the default bounded job queue size.
const DefaultQueueCapacity = 2000

// DefaultWorkers is the default worker pool size (N).
const DefaultWorkers = 3

// DefaultCacheCapacity is the default LRU cache capacity.
const DefaultCacheCapacity = 500

// job is one pending body-retrieval request.
type job struct {
	id    adapter.RequestID
	entry *har.Entry
}

// Pipeline owns the bounded queue, worker pool, and LRU cache.
type Pipeline struct {
	jobs     chan job
	cache    *lruCache
	adapter  adapter.Adapter
	redactor *redact.Engine
	maxBody  int64

	onComplete func(id adapter.RequestID, entry *har.Entry)

	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// Options configures a Pipeline.
type Options struct {
	Workers          int
	QueueCapacity    int
	CacheCapacity    int
	MaxResponseBody  int64 // 0 = unlimited
	Adapter          adapter.Adapter
	Redactor         *redact.Engine
	OnComplete       func(id adapter.RequestID, entry *har.Entry)
}

// New constructs and starts a Pipeline's worker pool.
func New(opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueCap := opts.QueueCapacity
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	cacheCap := opts.CacheCapacity
	if cacheCap <= 0 {
		cacheCap = DefaultCacheCapacity
	}
	redactor := opts.Redactor
	if redactor == nil {
		redactor = redact.Noop()
	}

	p := &Pipeline{
		jobs:       make(chan job, queueCap),
		cache:      newLRUCache(cacheCap),
		adapter:    opts.Adapter,
		redactor:   redactor,
		maxBody:    opts.MaxResponseBody,
		onComplete: opts.OnComplete,
		stopped:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit enqueues a body-retrieval request for entry, blocking the
// caller if the queue is full — the "wait" back-pressure policy.
func (p *Pipeline) Submit(id adapter.RequestID, entry *har.Entry) {
	select {
	case p.jobs <- job{id: id, entry: entry}:
	case <-p.stopped:
	}
}

// Drain waits for all in-flight and queued jobs to finish, or for ctx to
// be done — used by the session's stop() with a 10s "proceed anyway"
// timeout.
func (p *Pipeline) Drain(ctx context.Context) {
	close(p.jobs)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Close stops accepting new work without waiting for in-flight jobs;
// idempotent.
func (p *Pipeline) Close() {
	p.once.Do(func() {
		close(p.stopped)
	})
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.process(j)
	}
}

func (p *Pipeline) process(j job) {
	entry := j.entry
	url := entry.Request.URL

	body, cached := p.cache.get(url)
	if !cached {
		text, isBase64, err := p.adapter.GetResponseBody(context.Background(), j.id)
		if err != nil {
			// Body retrieval failed: emit the entry without content,
			// never fail the capture.
			p.finish(j.id, entry)
			return
		}
		body = cachedBody{text: text, base64: isBase64}
		p.cache.put(url, body)
	}

	applyBody(entry, body, p.maxBody, p.redactor)
	p.finish(j.id, entry)
}

func (p *Pipeline) finish(id adapter.RequestID, entry *har.Entry) {
	if p.onComplete != nil {
		p.onComplete(id, entry)
	}
}

// applyBody reshapes entry.Response.Content from a retrieved body,
// applying size-limit truncation and, for non-base64 text, body
// redaction.
//
// Base64 bodies are length-checked before decoding — the raw base64
// string from the adapter is truncated to maxBody first. A truncated
// base64 string is rarely valid base64 on its own, so it is trimmed to
// the nearest 4-byte boundary before decoding; whatever fails to decode
// is simply dropped rather than surfaced as an error, since a truncated
// body is already a lossy, best-effort artifact.
func applyBody(entry *har.Entry, body cachedBody, maxBody int64, redactor *redact.Engine) {
	raw := body.text
	truncated := false
	if maxBody > 0 && int64(len(raw)) > maxBody {
		raw = raw[:maxBody]
		truncated = true
	}

	var size int64
	if body.base64 {
		validLen := (len(raw) / 4) * 4
		decoded, err := base64.StdEncoding.DecodeString(raw[:validLen])
		if err != nil {
			decoded = nil
		}
		entry.Response.Content.Text = decoded
		entry.Response.Content.Encoding = "base64"
		size = int64(len(decoded))
	} else {
		text := raw
		if redactor.HasBodyPatterns() {
			text, _ = redactor.RedactBody(text)
		}
		entry.Response.Content.Text = []byte(text)
		entry.Response.Content.Encoding = ""
		size = int64(len(text))
	}

	entry.Response.Content.HasText = true
	if truncated {
		size = maxBody
	}
	entry.Response.Content.Size = size
	entry.Response.BodySize = size
	entry.ResponseBodySize = size
}
