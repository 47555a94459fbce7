package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tbjorklund/parlo/internal/observe"
	"github.com/tbjorklund/parlo/internal/segment"
	"github.com/tbjorklund/parlo/pkg/audio"
	audiomock "github.com/tbjorklund/parlo/pkg/audio/mock"
	"github.com/tbjorklund/parlo/pkg/provider/llm"
	llmmock "github.com/tbjorklund/parlo/pkg/provider/llm/mock"
	sttmock "github.com/tbjorklund/parlo/pkg/provider/stt/mock"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
	ttsmock "github.com/tbjorklund/parlo/pkg/provider/tts/mock"
	"github.com/tbjorklund/parlo/pkg/provider/vad"
	vadmock "github.com/tbjorklund/parlo/pkg/provider/vad/mock"
)

// Segmenter tuning for tests: 3 speech frames open a segment, 5 silence
// frames close it, at 20ms per frame.
var testSegCfg = segment.Config{
	MinSpeech:     60 * time.Millisecond,
	MinSilence:    100 * time.Millisecond,
	FrameDuration: 20 * time.Millisecond,
}

func speechEvents(n int) []vad.VADEvent {
	out := make([]vad.VADEvent, n)
	for i := range out {
		out[i] = vad.VADEvent{Type: vad.VADSpeechContinue}
	}
	return out
}

func silenceEvents(n int) []vad.VADEvent {
	out := make([]vad.VADEvent, n)
	for i := range out {
		out[i] = vad.VADEvent{Type: vad.VADSilence}
	}
	return out
}

// fixture wires a Coordinator to mocks and a scripted VAD, and runs its event
// loop over a pushable frame channel.
type fixture struct {
	t *testing.T

	stt  *sttmock.Provider
	llm  *llmmock.Provider
	sink *audiomock.Sink

	coord  *Coordinator
	frames chan audio.Frame
	seq    uint64
	runErr chan error
	cancel context.CancelFunc
}

func newFixture(t *testing.T, cfg Config, vadScript []vad.VADEvent, mutate func(*Deps)) *fixture {
	t.Helper()

	engine := &vadmock.Engine{Script: vadScript}
	sess, err := engine.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	if err != nil {
		t.Fatalf("vad NewSession: %v", err)
	}
	seg, err := segment.New(testSegCfg, sess, nil)
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}

	f := &fixture{
		t:      t,
		stt:    &sttmock.Provider{},
		llm:    &llmmock.Provider{},
		sink:   audiomock.NewSink(),
		frames: make(chan audio.Frame, 256),
		runErr: make(chan error, 1),
	}
	deps := Deps{
		STT:       f.stt,
		LLM:       f.llm,
		TTS:       &ttsmock.Provider{},
		Voice:     tts.VoiceProfile{Name: "test"},
		Sink:      f.sink,
		Segmenter: seg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.coord, err = New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	t.Cleanup(cancel)
	go func() { f.runErr <- f.coord.Run(ctx, f.frames) }()
	return f
}

// push delivers n frames with sequential sequence numbers.
func (f *fixture) push(n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		f.frames <- audio.Frame{
			Data:       make([]byte, 640),
			SampleRate: 16000,
			Channels:   1,
			Seq:        f.seq,
		}
		f.seq++
	}
}

// finish closes the frame stream and waits for Run to return.
func (f *fixture) finish() error {
	f.t.Helper()
	close(f.frames)
	select {
	case err := <-f.runErr:
		return err
	case <-time.After(5 * time.Second):
		f.t.Fatal("Run did not return after frame stream closed")
		return nil
	}
}

// waitWrites polls until the sink has received at least n chunks.
func (f *fixture) waitWrites(n int) {
	f.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.sink.Writes()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.t.Fatalf("sink received %d writes, want at least %d", len(f.sink.Writes()), n)
}

func writesAsText(sink *audiomock.Sink) []string {
	var out []string
	for _, w := range sink.Writes() {
		out = append(out, string(w))
	}
	return out
}

// gatedTTS synthesizes the first sentence of each stream immediately and
// holds every later chunk until gate is closed, keeping an agent turn in the
// Speaking state for as long as a test needs.
type gatedTTS struct {
	gate chan struct{}
}

var _ tts.Provider = (*gatedTTS)(nil)

func (g *gatedTTS) SynthesizeStream(ctx context.Context, sentences <-chan tts.Sentence, _ tts.VoiceProfile) (<-chan tts.Chunk, error) {
	out := make(chan tts.Chunk, 16)
	go func() {
		defer close(out)
		first := true
		for s := range sentences {
			if !first {
				select {
				case <-g.gate:
				case <-ctx.Done():
					return
				}
			}
			first = false
			select {
			case out <- tts.Chunk{Seq: s.Seq, PCM: []byte(s.Text)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestUtteranceProducesSpokenReply(t *testing.T) {
	t.Parallel()

	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways, SystemPrompt: "be brief"}, script, nil)
	f.stt.Script = []sttmock.Segment{{Final: "hello there"}}
	f.llm.Script = []llmmock.Reply{{Chunks: []string{"Hi! ", "How are you?"}}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := writesAsText(f.sink); len(got) != 2 || got[0] != "Hi!" || got[1] != "How are you?" {
		t.Fatalf("sink writes = %q, want the two reply sentences in order", got)
	}

	turns := f.coord.History().Snapshot()
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "hello there" {
		t.Fatalf("first turn = %+v, want the user transcript", turns[0])
	}
	if turns[1].Role != RoleAgent || turns[1].Text != "Hi! How are you?" || turns[1].Interrupted {
		t.Fatalf("second turn = %+v, want the completed agent reply", turns[1])
	}

	reqs := f.llm.Requests()
	if len(reqs) != 1 {
		t.Fatalf("planner called %d times, want 1", len(reqs))
	}
	if reqs[0].SystemPrompt != "be brief" {
		t.Fatalf("request system prompt = %q", reqs[0].SystemPrompt)
	}
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	if last.Role != llm.RoleUser || last.Content != "hello there" {
		t.Fatalf("last request message = %+v, want the user transcript", last)
	}
}

func TestEmptyTranscriptDiscardsTurn(t *testing.T) {
	t.Parallel()

	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, nil)
	f.stt.Script = []sttmock.Segment{{Final: "   "}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := len(f.llm.Requests()); n != 0 {
		t.Fatalf("planner called %d times for an empty transcript, want 0", n)
	}
	if n := f.coord.History().Len(); n != 0 {
		t.Fatalf("history has %d turns after a discarded segment, want 0", n)
	}
	if n := len(f.sink.Writes()); n != 0 {
		t.Fatalf("sink received %d writes, want 0", n)
	}
}

func TestRecognitionFailureDiscardsTurn(t *testing.T) {
	t.Parallel()

	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, nil)
	f.stt.Script = []sttmock.Segment{{Fail: true}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(f.llm.Requests()); n != 0 {
		t.Fatalf("planner called %d times after a recognition failure, want 0", n)
	}
	if n := f.coord.History().Len(); n != 0 {
		t.Fatalf("history has %d turns, want 0", n)
	}
}

func TestBargeInInterruptsSpeakingTurn(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	script := append(speechEvents(5), silenceEvents(6)...)
	script = append(script, speechEvents(3)...)
	script = append(script, silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, func(d *Deps) {
		d.TTS = &gatedTTS{gate: gate}
	})
	f.stt.Script = []sttmock.Segment{{Final: "tell me a story"}, {Final: "stop"}}
	f.llm.Script = []llmmock.Reply{
		{Chunks: []string{"Once upon a time. ", "There was a dragon."}},
		{Chunks: []string{"Okay."}},
	}

	// First utterance; the gated synthesizer plays the first sentence and
	// then holds, so the agent stays in Speaking.
	f.push(11)
	f.waitWrites(1)

	// Barge-in: a new speech segment while the agent is speaking.
	f.push(3)
	f.push(6)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := f.sink.Flushes(); n != 1 {
		t.Fatalf("sink flushed %d times, want exactly 1", n)
	}
	got := writesAsText(f.sink)
	if len(got) != 2 || got[0] != "Once upon a time." || got[1] != "Okay." {
		t.Fatalf("sink writes = %q, want the cut first reply then the second reply", got)
	}

	var interruptedTurn, secondReply *Turn
	for _, turn := range f.coord.History().Snapshot() {
		turn := turn
		switch {
		case turn.Role == RoleAgent && turn.Interrupted:
			interruptedTurn = &turn
		case turn.Role == RoleAgent && turn.Text == "Okay.":
			secondReply = &turn
		}
	}
	if interruptedTurn == nil {
		t.Fatal("history has no interrupted agent turn")
	}
	if !strings.Contains(interruptedTurn.Text, "Once upon a time.") {
		t.Fatalf("interrupted turn text = %q, want the generated text before the cut", interruptedTurn.Text)
	}
	if secondReply == nil {
		t.Fatal("history has no reply to the interrupting utterance")
	}
}

func TestGracePeriodDeniesEarlyBargeIn(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	script := append(speechEvents(5), silenceEvents(6)...) // utterance one
	script = append(script, speechEvents(3)...)            // denied attempt
	script = append(script, silenceEvents(6)...)
	script = append(script, speechEvents(3)...) // honored attempt
	script = append(script, silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInGrace, GracePeriod: 300 * time.Millisecond}, script, func(d *Deps) {
		d.TTS = &gatedTTS{gate: gate}
	})
	f.stt.Script = []sttmock.Segment{{Final: "talk to me"}}
	f.llm.Script = []llmmock.Reply{{Chunks: []string{"First sentence. ", "Second sentence."}}}

	f.push(11)
	f.waitWrites(1) // agent is now speaking

	// Within the grace period: the interruption must be ignored outright.
	f.push(9)
	time.Sleep(100 * time.Millisecond)
	if n := f.sink.Flushes(); n != 0 {
		t.Fatalf("sink flushed %d times inside the grace period, want 0", n)
	}
	if n := len(f.stt.Sessions()); n != 1 {
		t.Fatalf("%d recognition sessions after a denied barge-in, want 1", n)
	}

	// Past the grace period: the same speech pattern must be honored.
	time.Sleep(300 * time.Millisecond)
	f.push(9)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := f.sink.Flushes(); n != 1 {
		t.Fatalf("sink flushed %d times after the grace period, want 1", n)
	}
	if n := len(f.stt.Sessions()); n != 2 {
		t.Fatalf("%d recognition sessions after an honored barge-in, want 2", n)
	}
}

func TestNeverPolicyIgnoresUserSpeech(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	script := append(speechEvents(5), silenceEvents(6)...)
	script = append(script, speechEvents(5)...)
	script = append(script, silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInNever}, script, func(d *Deps) {
		d.TTS = &gatedTTS{gate: gate}
	})
	f.stt.Script = []sttmock.Segment{{Final: "hello"}}
	f.llm.Script = []llmmock.Reply{{Chunks: []string{"One. ", "Two."}}}

	f.push(11)
	f.waitWrites(1)

	// Speech while the agent holds the floor: dropped entirely.
	f.push(11)
	time.Sleep(100 * time.Millisecond)
	if n := len(f.stt.Sessions()); n != 1 {
		t.Fatalf("%d recognition sessions, want 1 (speech during agent turn ignored)", n)
	}
	if n := f.sink.Flushes(); n != 0 {
		t.Fatalf("sink flushed %d times under never policy, want 0", n)
	}

	// Release the turn and let everything wind down.
	close(gate)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := writesAsText(f.sink)
	if len(got) != 2 || got[0] != "One." || got[1] != "Two." {
		t.Fatalf("sink writes = %q, want the full uninterrupted reply", got)
	}
	turns := f.coord.History().Snapshot()
	if len(turns) != 2 || turns[1].Interrupted {
		t.Fatalf("history = %+v, want one user and one uninterrupted agent turn", turns)
	}
}

func TestOutOfOrderSynthesisPlaysInOrder(t *testing.T) {
	t.Parallel()

	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, func(d *Deps) {
		d.TTS = &ttsmock.Provider{ReverseOrder: true}
	})
	f.stt.Script = []sttmock.Segment{{Final: "count to three"}}
	f.llm.Script = []llmmock.Reply{{Chunks: []string{"One. ", "Two. ", "Three."}}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := writesAsText(f.sink)
	want := []string{"One.", "Two.", "Three."}
	if len(got) != len(want) {
		t.Fatalf("sink writes = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sink writes = %q, want strict sentence order %q", got, want)
		}
	}
}

func TestPlannerFailureSpeaksFallback(t *testing.T) {
	t.Parallel()

	const fallback = "I am sorry. Please say that again."
	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways, FallbackReply: fallback}, script, nil)
	f.stt.Script = []sttmock.Segment{{Final: "hello"}}
	f.llm.Script = []llmmock.Reply{{StreamErr: true}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := writesAsText(f.sink)
	if len(got) != 2 || got[0] != "I am sorry." || got[1] != "Please say that again." {
		t.Fatalf("sink writes = %q, want the fallback sentences", got)
	}

	turns := f.coord.History().Snapshot()
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	if turns[1].Role != RoleAgent || turns[1].Text != fallback {
		t.Fatalf("agent turn = %+v, want the fallback reply archived", turns[1])
	}
}

func TestSynthesisChunkFailureSkipsGap(t *testing.T) {
	t.Parallel()

	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, func(d *Deps) {
		d.TTS = &ttsmock.Provider{FailSeqs: []uint64{0}}
	})
	f.stt.Script = []sttmock.Segment{{Final: "hello"}}
	f.llm.Script = []llmmock.Reply{{Chunks: []string{"One. ", "Two."}}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := writesAsText(f.sink)
	if len(got) != 1 || got[0] != "Two." {
		t.Fatalf("sink writes = %q, want only the surviving sentence", got)
	}
	turns := f.coord.History().Snapshot()
	if len(turns) != 2 || turns[1].Text != "One. Two." {
		t.Fatalf("history = %+v, want the full reply text despite the audio gap", turns)
	}
}

func TestSayTextSpeaksAndArchives(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Policy: BargeInAlways}, silenceEvents(1), nil)

	if err := f.coord.SayText(context.Background(), "Hello there!"); err != nil {
		t.Fatalf("SayText: %v", err)
	}
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := writesAsText(f.sink)
	if len(got) != 1 || got[0] != "Hello there!" {
		t.Fatalf("sink writes = %q, want the greeting", got)
	}
	turns := f.coord.History().Snapshot()
	if len(turns) != 1 || turns[0].Role != RoleAgent || turns[0].Text != "Hello there!" {
		t.Fatalf("history = %+v, want the greeting archived as an agent turn", turns)
	}

	if err := f.coord.SayText(context.Background(), "  "); err == nil {
		t.Fatal("SayText accepted empty text")
	}
}

// newTestMetrics returns a Metrics set backed by a manual reader so tests can
// assert what was recorded.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collectMetric collects from the reader and returns the named metric.
func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestSinkFailureEndsSession(t *testing.T) {
	t.Parallel()

	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, nil)
	f.sink.WriteErr = errors.New("transport gone")
	f.stt.Script = []sttmock.Segment{{Final: "tell me everything"}}

	// A reply far longer than the pipeline buffers, so a wedged turn worker
	// would stall the feed instead of winding down on its own.
	var chunks []string
	for i := 0; i < 60; i++ {
		chunks = append(chunks, fmt.Sprintf("This is sentence number %d. ", i))
	}
	f.llm.Script = []llmmock.Reply{{Chunks: chunks}}

	f.push(11)
	select {
	case err := <-f.runErr:
		if err == nil || !strings.Contains(err.Error(), "sink write failed") {
			t.Fatalf("Run returned %v, want the sink failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a fatal sink failure")
	}
}

func TestSynthesisLatencyIsRecorded(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestMetrics(t)
	script := append(speechEvents(5), silenceEvents(6)...)
	f := newFixture(t, Config{Policy: BargeInAlways}, script, func(d *Deps) {
		d.Metrics = metrics
	})
	f.stt.Script = []sttmock.Segment{{Final: "hello"}}
	f.llm.Script = []llmmock.Reply{{Chunks: []string{"One. ", "Two."}}}

	f.push(11)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	m, ok := collectMetric(t, reader, "parlo.synthesis.duration")
	if !ok {
		t.Fatal("synthesis duration was never recorded")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("synthesis duration data = %T, want a float64 histogram", m.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Fatalf("synthesis duration has %d samples, want one per sentence (2)", count)
	}
}

func TestDegradedDetectionIsCounted(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestMetrics(t)

	failing := &vadmock.Engine{Err: errors.New("model crashed")}
	failSess, err := failing.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	if err != nil {
		t.Fatalf("vad NewSession: %v", err)
	}
	fbSess, err := (&vadmock.Engine{}).NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	if err != nil {
		t.Fatalf("fallback NewSession: %v", err)
	}
	seg, err := segment.New(testSegCfg, failSess, fbSess)
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}

	f := newFixture(t, Config{Policy: BargeInAlways}, nil, func(d *Deps) {
		d.Segmenter = seg
		d.Metrics = metrics
	})

	// Enough frames to exhaust the primary's error streak and switch over.
	f.push(5)
	if err := f.finish(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	m, ok := collectMetric(t, reader, "parlo.vad.degraded")
	if !ok {
		t.Fatal("degraded detection was never recorded")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("degraded detection data = %T, want an int64 sum", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Fatalf("degraded detection counted %d switches, want exactly 1", total)
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Policy: BargeInAlways}, silenceEvents(1), nil)
	f.cancel()

	select {
	case err := <-f.runErr:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
