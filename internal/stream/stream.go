// Package stream implements the streaming HAR writer: a single
// background consumer that keeps an output file valid HAR JSON after
// every entry, using seek-back footer rewriting, plus optional gzip
// finalization and a hard size cap with silent drop.
//
// Grounded on internal/streaming/stream.go's StreamState: mutex-guarded
// mutation, and — critically — the unlock-before-callback
// discipline in EmitAlert, reused here as unlock-before-I/O so the
// consumer never holds the queue lock while touching the file.
package stream

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/harcapture/engine/internal/har"
	"github.com/harcapture/engine/internal/logx"
)

type opKind int

const (
	opWriteEntry opKind = iota
	opAddPage
	opSetPageTimings
	opFlushBarrier
)

type streamOp struct {
	kind    opKind
	entry   *har.Entry
	page    har.Page
	pageID  string
	timings har.PageTimings
	done    chan struct{}
}

// Writer owns a single output file and a single consumer goroutine.
// Producers only ever enqueue; only the consumer touches the file
// handle, so no per-operation file lock is needed.
type Writer struct {
	queueMu sync.Mutex
	cond    *sync.Cond
	queue   []streamOp
	closed  bool

	path          string
	file          *os.File
	footerStart   int64
	entriesCount  int
	pages         []har.Page
	creator       har.Creator
	browser       *har.Browser
	comment       string
	custom        map[string]interface{}
	maxOutputSize int64
	capHit        bool

	logger *logx.Logger

	doneCh chan struct{}
}

// New creates the output file (parent directory created best-effort),
// writes the initial HAR shell, and starts the consumer goroutine.
func New(path string, creator har.Creator, browser *har.Browser, maxOutputSize int64, logger *logx.Logger) (*Writer, error) {
	if logger == nil {
		logger = logx.Noop()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}

	f, err := os.Create(path) // #nosec G304 -- path comes from session configuration
	if err != nil {
		return nil, fmt.Errorf("stream: create output file: %w", err)
	}

	w := &Writer{
		path:          path,
		file:          f,
		creator:       creator,
		browser:       browser,
		maxOutputSize: maxOutputSize,
		logger:        logger,
		doneCh:        make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.queueMu)

	if err := w.writeInitialShell(); err != nil {
		f.Close()
		return nil, err
	}

	go w.consume()
	return w, nil
}

func (w *Writer) writeInitialShell() error {
	header := fmt.Sprintf(`{"log":{"version":%q,"creator":`, har.HARVersion)
	creatorJSON, err := json.Marshal(w.creator)
	if err != nil {
		return err
	}
	if _, err := w.file.WriteString(header); err != nil {
		return err
	}
	if _, err := w.file.Write(creatorJSON); err != nil {
		return err
	}
	if _, err := w.file.WriteString(`,"entries":[`); err != nil {
		return err
	}
	pos, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	w.footerStart = pos
	return w.rewriteFooterLocked()
}

// WriteEntry enqueues an entry for writing. Never blocks beyond the
// in-process queue lock — the unbounded queue means producers never
// wait on disk I/O's thread model.
func (w *Writer) WriteEntry(entry *har.Entry) {
	w.enqueue(streamOp{kind: opWriteEntry, entry: entry})
}

// AddPage enqueues a page addition; the footer is rewritten to include
// it once the consumer processes the op.
func (w *Writer) AddPage(p har.Page) {
	w.enqueue(streamOp{kind: opAddPage, page: p})
}

// SetPageTimings enqueues an update to an already-added page's timings,
// used by the session at stop() to record onContentLoad/onLoad offsets
// discovered after the page was created.
func (w *Writer) SetPageTimings(pageID string, timings har.PageTimings) {
	w.enqueue(streamOp{kind: opSetPageTimings, pageID: pageID, timings: timings})
}

// Path returns the writer's raw (pre-compression) output path.
func (w *Writer) Path() string {
	return w.path
}

// FlushBarrier blocks until the consumer has drained everything enqueued
// before this call returns — used by the session's stop() to know
// writing has finished.
func (w *Writer) FlushBarrier() {
	done := make(chan struct{})
	w.enqueue(streamOp{kind: opFlushBarrier, done: done})
	<-done
}

func (w *Writer) enqueue(op streamOp) {
	w.queueMu.Lock()
	if w.closed {
		w.queueMu.Unlock()
		if op.done != nil {
			close(op.done)
		}
		return
	}
	w.queue = append(w.queue, op)
	w.queueMu.Unlock()
	w.cond.Signal()
}

func (w *Writer) consume() {
	for {
		w.queueMu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.queueMu.Unlock()
			close(w.doneCh)
			return
		}
		op := w.queue[0]
		w.queue = w.queue[1:]
		w.queueMu.Unlock()

		switch op.kind {
		case opWriteEntry:
			if err := w.handleWriteEntry(op.entry); err != nil {
				w.logger.Warn("stream write failed", logx.Err(err))
			}
		case opAddPage:
			w.pages = append(w.pages, op.page)
			if err := w.rewriteFooterAt(w.footerStart); err != nil {
				w.logger.Warn("stream footer rewrite failed", logx.Err(err))
			}
		case opSetPageTimings:
			for i := range w.pages {
				if w.pages[i].ID == op.pageID {
					w.pages[i].PageTimings = op.timings
					break
				}
			}
			if err := w.rewriteFooterAt(w.footerStart); err != nil {
				w.logger.Warn("stream footer rewrite failed", logx.Err(err))
			}
		case opFlushBarrier:
			close(op.done)
		}
	}
}

func (w *Writer) handleWriteEntry(entry *har.Entry) error {
	if w.capHit {
		return nil
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	separator := []byte("")
	if w.entriesCount > 0 {
		separator = []byte(",")
	}

	footer := w.footerBytes()
	prospective := w.footerStart + int64(len(separator)) + int64(len(entryJSON)) + int64(len(footer))
	if w.maxOutputSize > 0 && prospective > w.maxOutputSize {
		// Size-cap hit: silently drop this and all subsequent entries.
		// The last successfully written entry plus its footer stays in
		// place, so the file remains parseable HAR.
		w.capHit = true
		return nil
	}

	if _, err := w.file.Seek(w.footerStart, io.SeekStart); err != nil {
		return err
	}
	if len(separator) > 0 {
		if _, err := w.file.Write(separator); err != nil {
			return err
		}
	}
	if _, err := w.file.Write(entryJSON); err != nil {
		return err
	}
	newFooterStart, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	w.footerStart = newFooterStart
	w.entriesCount++

	if err := w.rewriteFooterLocked(); err != nil {
		return err
	}
	return w.file.Sync()
}

// rewriteFooterAt seeks to the given offset first; used when an
// operation (AddPage) changes the footer without writing a new entry.
func (w *Writer) rewriteFooterAt(offset int64) error {
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return w.rewriteFooterLocked()
}

// rewriteFooterLocked writes the footer at the file's current position
// and truncates the file there. Called only from the consumer goroutine,
// so no lock is required around the file handle itself.
func (w *Writer) rewriteFooterLocked() error {
	footer := w.footerBytes()
	if _, err := w.file.Write(footer); err != nil {
		return err
	}
	pos, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := w.file.Truncate(pos); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *Writer) footerBytes() []byte {
	var b bytes.Buffer
	b.WriteString("]")
	if len(w.pages) > 0 {
		pagesJSON, _ := json.Marshal(w.pages)
		b.WriteString(`,"pages":`)
		b.Write(pagesJSON)
	}
	if w.browser != nil {
		browserJSON, _ := json.Marshal(w.browser)
		b.WriteString(`,"browser":`)
		b.Write(browserJSON)
	}
	if w.comment != "" {
		commentJSON, _ := json.Marshal(w.comment)
		b.WriteString(`,"comment":`)
		b.Write(commentJSON)
	}
	if len(w.custom) > 0 {
		customJSON, _ := json.Marshal(w.custom)
		b.WriteString(`,"_custom":`)
		b.Write(customJSON)
	}
	b.WriteString("}}")
	return b.Bytes()
}

// SetComment and SetCustom configure footer metadata written on the next
// footer rewrite; both must be called before Close for reliable effect,
// since the consumer applies them at whatever rewrite happens next.
func (w *Writer) SetComment(c string) { w.comment = c }

// SetCustom sets the `_custom` map emitted in the footer.
func (w *Writer) SetCustom(m map[string]interface{}) { w.custom = m }

// Close drains the queue, closes the file, and — if compress is true —
// finalizes the output as a gzip file at path+".gz", deleting the raw
// file. Returns the effective output path (path itself, or path+".gz"
// when compressed). Idempotent: a second Close is a no-op returning the
// same path.
func (w *Writer) Close(compress bool) (string, error) {
	w.queueMu.Lock()
	alreadyClosed := w.closed
	w.closed = true
	w.queueMu.Unlock()
	w.cond.Signal()

	if alreadyClosed {
		if compress {
			return w.path + ".gz", nil
		}
		return w.path, nil
	}

	<-w.doneCh
	w.file.Close()

	if !compress {
		return w.path, nil
	}
	return w.finalizeCompression()
}

// finalizeCompression closes the raw file (already done by caller),
// opens it for read, writes a gzip stream to <path>.gz, closes both,
// and deletes the raw file.
//
// compress/gzip is used directly rather than through a third-party
// archive wrapper, matching sofatutor-llm-proxy's
// internal/eventtransformer/decode.go, the pack's own observed idiom for
// this exact codec.
func (w *Writer) finalizeCompression() (string, error) {
	gzPath := w.path + ".gz"

	in, err := os.Open(w.path)
	if err != nil {
		return w.path, fmt.Errorf("stream: reopen for compression: %w", err)
	}
	defer in.Close()

	out, err := os.Create(gzPath) // #nosec G304 -- derived from session-configured path
	if err != nil {
		return w.path, fmt.Errorf("stream: create gzip output: %w", err)
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return w.path, fmt.Errorf("stream: gzip copy: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return w.path, fmt.Errorf("stream: gzip close: %w", err)
	}
	if err := out.Close(); err != nil {
		return w.path, fmt.Errorf("stream: gzip output close: %w", err)
	}

	if err := os.Remove(w.path); err != nil {
		w.logger.Warn("stream: failed to remove raw file after compression", logx.Err(err))
	}

	return gzPath, nil
}

// EntriesCount returns the number of entries successfully written so
// far (excludes any dropped by the size cap).
func (w *Writer) EntriesCount() int {
	return w.entriesCount
}

// CapHit reports whether the size cap has silently dropped at least one
// entry.
func (w *Writer) CapHit() bool {
	return w.capHit
}
