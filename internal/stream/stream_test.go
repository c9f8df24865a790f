package stream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harcapture/engine/internal/har"
)

func readDecoded(t *testing.T, path string) har.Har {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "output must always be valid JSON, even mid-write")
	var doc har.Har
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func newWriter(t *testing.T, maxSize int64) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.har")
	w, err := New(path, har.Creator{Name: "harcapture", Version: "test"}, nil, maxSize, nil)
	require.NoError(t, err)
	return w, path
}

func TestEmptyDocumentIsValidHAR(t *testing.T) {
	w, path := newWriter(t, 0)
	_, err := w.Close(false)
	require.NoError(t, err)

	doc := readDecoded(t, path)
	require.Equal(t, "1.2", doc.Log.Version)
	require.Empty(t, doc.Log.Entries)
}

func TestFileStaysValidAfterEachEntry(t *testing.T) {
	w, path := newWriter(t, 0)

	for i := 0; i < 3; i++ {
		w.WriteEntry(&har.Entry{
			Request:  &har.Request{Method: "GET", URL: "https://example.com"},
			Response: &har.Response{Status: 200},
		})
		w.FlushBarrier()
		doc := readDecoded(t, path)
		require.Len(t, doc.Log.Entries, i+1)
	}

	_, err := w.Close(false)
	require.NoError(t, err)
}

func TestAddPageAppearsInFooter(t *testing.T) {
	w, path := newWriter(t, 0)
	w.AddPage(har.Page{ID: "page_1", Title: "home"})
	w.FlushBarrier()

	doc := readDecoded(t, path)
	require.Len(t, doc.Log.Pages, 1)
	require.Equal(t, "page_1", doc.Log.Pages[0].ID)

	_, err := w.Close(false)
	require.NoError(t, err)
}

func TestSizeCapDropsSubsequentEntriesSilently(t *testing.T) {
	w, path := newWriter(t, 0)
	// Establish a baseline file size, then set a cap just above it so the
	// first entry fits but a second, larger one does not.
	w.WriteEntry(&har.Entry{
		Request:  &har.Request{Method: "GET", URL: "https://example.com/a"},
		Response: &har.Response{Status: 200},
	})
	w.FlushBarrier()

	info, err := os.Stat(path)
	require.NoError(t, err)
	w.maxOutputSize = info.Size() + 5 // enough for a comma, not a whole entry

	w.WriteEntry(&har.Entry{
		Request:  &har.Request{Method: "GET", URL: "https://example.com/a-very-long-path-indeed"},
		Response: &har.Response{Status: 200},
	})
	w.FlushBarrier()

	require.True(t, w.CapHit())
	require.Equal(t, 1, w.EntriesCount())

	doc := readDecoded(t, path)
	require.Len(t, doc.Log.Entries, 1)

	_, err = w.Close(false)
	require.NoError(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	w, _ := newWriter(t, 0)
	p1, err := w.Close(false)
	require.NoError(t, err)
	p2, err := w.Close(false)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestCompressionFinalizesToGzAndRemovesRaw(t *testing.T) {
	w, path := newWriter(t, 0)
	w.WriteEntry(&har.Entry{
		Request:  &har.Request{Method: "GET", URL: "https://example.com"},
		Response: &har.Response{Status: 200},
	})
	w.FlushBarrier()

	finalPath, err := w.Close(true)
	require.NoError(t, err)
	require.Equal(t, path+".gz", finalPath)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "raw file must be removed after compression")

	_, err = os.Stat(finalPath)
	require.NoError(t, err)
}
