package neutts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbjorklund/parlo/pkg/provider/tts"
)

// testWAV builds a minimal 16-bit mono WAV with the given payload samples.
func testWAV(sampleRate int, pcm []byte) []byte {
	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

func testVoice() tts.VoiceProfile {
	return tts.VoiceProfile{
		Name:     "dave",
		RefAudio: testWAV(24000, make([]byte, 64)),
		RefText:  "My name is Dave.",
	}
}

func TestNewRequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestSynthesizeStreamOneChunkPerSentence(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.RefText == "" || req.RefAudio == "" {
			http.Error(w, "missing reference voice", http.StatusBadRequest)
			return
		}
		requests.Add(1)
		// Payload length encodes the sentence so the test can tell chunks
		// apart: one sample per text byte.
		_, _ = w.Write(testWAV(16000, make([]byte, len(req.Text)*2)))
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sentences := make(chan tts.Sentence, 3)
	sentences <- tts.Sentence{Seq: 0, Text: "Hi."}
	sentences <- tts.Sentence{Seq: 1, Text: "How are you?"}
	sentences <- tts.Sentence{Seq: 2, Text: "Good."}
	close(sentences)

	chunks, err := p.SynthesizeStream(context.Background(), sentences, testVoice())
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	got := map[uint64]int{}
	for c := range chunks {
		if c.Err != nil {
			t.Fatalf("chunk %d: %v", c.Seq, c.Err)
		}
		got[c.Seq] = len(c.PCM)
	}
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if got[0] != len("Hi.")*2 || got[1] != len("How are you?")*2 || got[2] != len("Good.")*2 {
		t.Fatalf("chunk sizes %v do not match sentences", got)
	}
	if requests.Load() != 3 {
		t.Fatalf("server saw %d requests, want 3", requests.Load())
	}
}

func TestSynthesizeStreamPerSentenceFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ttsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "fail" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(testWAV(16000, make([]byte, 32)))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)

	sentences := make(chan tts.Sentence, 2)
	sentences <- tts.Sentence{Seq: 0, Text: "ok"}
	sentences <- tts.Sentence{Seq: 1, Text: "fail"}
	close(sentences)

	chunks, err := p.SynthesizeStream(context.Background(), sentences, testVoice())
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var okChunks, failedChunks int
	for c := range chunks {
		if c.Err != nil {
			failedChunks++
			if c.Seq != 1 {
				t.Errorf("failure on seq %d, want 1", c.Seq)
			}
		} else {
			okChunks++
		}
	}
	if okChunks != 1 || failedChunks != 1 {
		t.Fatalf("got %d ok + %d failed, want 1 + 1", okChunks, failedChunks)
	}
}

func TestSynthesizeStreamRequiresVoice(t *testing.T) {
	t.Parallel()

	p, _ := New("http://localhost:1")
	sentences := make(chan tts.Sentence)
	if _, err := p.SynthesizeStream(context.Background(), sentences, tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice profile")
	}
}

func TestSynthesizeStreamResamples(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 480 samples at 48kHz = 10ms.
		_, _ = w.Write(testWAV(48000, make([]byte, 960)))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithOutputSampleRate(16000))

	sentences := make(chan tts.Sentence, 1)
	sentences <- tts.Sentence{Seq: 0, Text: "x"}
	close(sentences)

	chunks, err := p.SynthesizeStream(context.Background(), sentences, testVoice())
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	select {
	case c := <-chunks:
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		// 10ms at 16kHz = 160 samples = 320 bytes.
		if len(c.PCM) != 320 {
			t.Fatalf("got %d bytes, want 320 after resample", len(c.PCM))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
