package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

type memWriter struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.closed = true
	return w.closeErr
}

type memFactory struct {
	objects map[string]*memWriter
	names   []string
	writers []*memWriter
	next    *memWriter
}

func (f *memFactory) NewWriter(_ context.Context, object string) io.WriteCloser {
	w := f.next
	if w == nil {
		w = &memWriter{}
	}
	if f.objects == nil {
		f.objects = make(map[string]*memWriter)
	}
	f.objects[object] = w
	f.names = append(f.names, object)
	f.writers = append(f.writers, w)
	return w
}

func newTestSink(factory *memFactory) *Sink {
	return &Sink{
		writers: factory,
		bucket:  "digests",
		prefix:  "results",
		logger:  zap.NewNop(),
	}
}

func TestPersistUploadsDocument(t *testing.T) {
	t.Parallel()

	factory := &memFactory{}
	s := newTestSink(factory)

	result := scraper.ScrapeResult{
		SourceURL: "https://example.com/start",
		Data: []scraper.FormattedResult{
			{URL: "https://example.com/a", Response: scraper.PageSummary{Title: "A"}},
		},
	}
	if err := s.Persist(context.Background(), result); err != nil {
		t.Fatalf("persist: %v", err)
	}

	w, ok := factory.objects["results/example.com/d2230315.json"]
	if !ok {
		t.Fatalf("unexpected object paths: %v", factory.names)
	}
	if !w.closed {
		t.Fatal("writer not closed")
	}

	var decoded scraper.ScrapeResult
	if err := json.Unmarshal(w.buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if decoded.SourceURL != result.SourceURL || len(decoded.Data) != 1 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestPersistIsIdempotent(t *testing.T) {
	t.Parallel()

	factory := &memFactory{}
	s := newTestSink(factory)

	result := scraper.ScrapeResult{
		SourceURL: "https://example.com/start",
		Data: []scraper.FormattedResult{
			{URL: "https://example.com/a", Response: scraper.PageSummary{Title: "A"}},
		},
	}
	if err := s.Persist(context.Background(), result); err != nil {
		t.Fatalf("first persist: %v", err)
	}
	if err := s.Persist(context.Background(), result); err != nil {
		t.Fatalf("second persist: %v", err)
	}

	if len(factory.names) != 2 || factory.names[0] != factory.names[1] {
		t.Fatalf("repeat persist changed the object path: %v", factory.names)
	}
	if !bytes.Equal(factory.writers[0].buf.Bytes(), factory.writers[1].buf.Bytes()) {
		t.Fatal("repeat persist changed the stored bytes")
	}
}

func TestPersistUploadFailureIsTransient(t *testing.T) {
	t.Parallel()

	factory := &memFactory{next: &memWriter{writeErr: errors.New("network down")}}
	s := newTestSink(factory)

	err := s.Persist(context.Background(), scraper.ScrapeResult{SourceURL: "https://example.com"})
	if err == nil {
		t.Fatal("expected upload error")
	}
	if !scraper.IsTransient(err) {
		t.Fatalf("upload failure should be transient: %v", err)
	}
}

func TestPersistCloseFailureIsTransient(t *testing.T) {
	t.Parallel()

	factory := &memFactory{next: &memWriter{closeErr: errors.New("flush failed")}}
	s := newTestSink(factory)

	err := s.Persist(context.Background(), scraper.ScrapeResult{SourceURL: "https://example.com"})
	if err == nil {
		t.Fatal("expected close error")
	}
	if !scraper.IsTransient(err) {
		t.Fatalf("close failure should be transient: %v", err)
	}
}
