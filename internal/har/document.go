package har

import (
	"fmt"
	"sort"
)

// Document is the in-memory, mutation-friendly counterpart to Log. The
// session builds one of these for in-memory mode only; in streaming mode
// it builds no Document and the stream writer owns the metadata, pages
// and entries on disk.
type Document struct {
	Creator Creator
	Browser *Browser
	Pages   []Page
	Entries []*Entry
	Comment string
	Custom  map[string]interface{}
}

// NewDocument creates an empty document with the given creator identity.
func NewDocument(creatorName, creatorVersion string) *Document {
	return &Document{
		Creator: Creator{Name: creatorName, Version: creatorVersion},
	}
}

// AddPage appends a page to the document.
func (d *Document) AddPage(p Page) {
	d.Pages = append(d.Pages, p)
}

// AddEntry appends a completed entry to the document.
func (d *Document) AddEntry(e *Entry) {
	d.Entries = append(d.Entries, e)
}

// Har renders the document as the wire-level Har structure, sorting
// entries chronologically by StartedDateTime — HAR readers prefer
// oldest-first ordering, and the session does not guarantee emission
// order across distinct request ids (see spec's ordering guarantees).
func (d *Document) Har() Har {
	entries := make([]*Entry, len(d.Entries))
	copy(entries, d.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedDateTime.Before(entries[j].StartedDateTime.Time)
	})

	return Har{
		Log: Log{
			Version: HARVersion,
			Creator: d.Creator,
			Browser: d.Browser,
			Pages:   d.Pages,
			Entries: entries,
			Comment: d.Comment,
			Custom:  d.Custom,
		},
	}
}

// Validate checks that every page has an id, that every entry carries a
// request and a response, that every pageref resolves to a known page id,
// and that every entry's _webSocketMessages are time-sorted. It does
// not validate JSON encodability — that is exercised by round-tripping
// through encoding/json in tests.
func (d *Document) Validate() error {
	pageIDs := make(map[string]struct{}, len(d.Pages))
	for _, p := range d.Pages {
		if p.ID == "" {
			return fmt.Errorf("har: page with empty id")
		}
		pageIDs[p.ID] = struct{}{}
	}

	for i, e := range d.Entries {
		if e.Request == nil {
			return fmt.Errorf("har: entry %d missing request", i)
		}
		if e.Response == nil {
			return fmt.Errorf("har: entry %d missing response", i)
		}
		if e.PageRef != "" {
			if _, ok := pageIDs[e.PageRef]; !ok {
				return fmt.Errorf("har: entry %d pageref %q does not resolve to any page", i, e.PageRef)
			}
		}
		if !nonDecreasing(e.WebSocketMessages) {
			return fmt.Errorf("har: entry %d _webSocketMessages not time-sorted", i)
		}
	}
	return nil
}

func nonDecreasing(msgs []WebSocketMessage) bool {
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Time < msgs[i-1].Time {
			return false
		}
	}
	return true
}
