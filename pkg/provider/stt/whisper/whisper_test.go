package whisper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbjorklund/parlo/pkg/provider/stt"
)

// newInferenceServer returns a test server answering POST /inference with the
// given text and recording how many requests arrived.
func newInferenceServer(t *testing.T, text string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
}

func TestNewRequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestSegmentDeliversSingleFinal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newInferenceServer(t, " hello there ", &calls)
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess, err := p.StartSegment(context.Background(), stt.SegmentConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartSegment: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := sess.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	select {
	case tr, ok := <-sess.Finals():
		if !ok {
			t.Fatal("finals closed without a transcript")
		}
		if tr.Text != "hello there" || !tr.IsFinal {
			t.Fatalf("got %+v", tr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}

	// One inference per segment, and exactly one final.
	if _, ok := <-sess.Finals(); ok {
		t.Fatal("got a second final")
	}
	if calls.Load() != 1 {
		t.Fatalf("server saw %d inference calls, want 1", calls.Load())
	}
}

func TestEmptySegmentEmitsEmptyFinal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newInferenceServer(t, "never called", &calls)
	defer srv.Close()

	p, _ := New(srv.URL)
	sess, err := p.StartSegment(context.Background(), stt.SegmentConfig{})
	if err != nil {
		t.Fatalf("StartSegment: %v", err)
	}
	defer sess.Close()

	_ = sess.CloseSend()

	select {
	case tr, ok := <-sess.Finals():
		if !ok {
			t.Fatal("finals closed without a transcript")
		}
		if tr.Text != "" {
			t.Fatalf("got %q, want empty text", tr.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}
	if calls.Load() != 0 {
		t.Fatal("inference called for an empty segment")
	}
}

func TestSendAudioAfterCloseSendFails(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "x", new(atomic.Int32))
	defer srv.Close()

	p, _ := New(srv.URL)
	sess, _ := p.StartSegment(context.Background(), stt.SegmentConfig{})
	defer sess.Close()

	_ = sess.CloseSend()
	if err := sess.SendAudio(make([]byte, 2)); err == nil {
		t.Fatal("expected error after CloseSend")
	}
}

func TestServerErrorClosesFinalsWithoutTranscript(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	sess, _ := p.StartSegment(context.Background(), stt.SegmentConfig{})
	defer sess.Close()

	_ = sess.SendAudio(make([]byte, 640))
	_ = sess.CloseSend()

	select {
	case _, ok := <-sess.Finals():
		if ok {
			t.Fatal("expected finals to close without a transcript on server error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
