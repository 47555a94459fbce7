package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbjorklund/parlo/internal/observe"
	"github.com/tbjorklund/parlo/internal/segment"
	"github.com/tbjorklund/parlo/pkg/audio"
	"github.com/tbjorklund/parlo/pkg/provider/llm"
	"github.com/tbjorklund/parlo/pkg/provider/stt"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
)

// BargeInPolicy controls whether user speech may interrupt the agent
// mid-utterance.
type BargeInPolicy string

const (
	// BargeInAlways honors every interruption, even before the agent has
	// produced any audio.
	BargeInAlways BargeInPolicy = "always"

	// BargeInNever ignores user speech entirely while an agent turn is
	// active.
	BargeInNever BargeInPolicy = "never"

	// BargeInGrace honors interruptions only after the agent has been
	// speaking for at least the configured grace period, so a cough does not
	// cut the agent off mid-word.
	BargeInGrace BargeInPolicy = "grace-period"
)

const (
	// defaultGracePeriod is how long the agent must have spoken before a
	// barge-in is honored under the grace-period policy.
	defaultGracePeriod = 300 * time.Millisecond

	// defaultFallbackReply is spoken when reply generation fails outright, so
	// the agent never goes silent on the user.
	defaultFallbackReply = "Sorry, I lost my train of thought there. Could you say that again?"

	// sentenceBuf is the buffer depth of the sentence channel between the
	// planner and the synthesizer. Sized to absorb a burst of short sentences
	// without blocking generation.
	sentenceBuf = 16
)

// Config holds the session-scoped tuning for a Coordinator. All fields are
// read-only for the lifetime of the session.
type Config struct {
	// Policy selects the barge-in behavior. Default: grace-period.
	Policy BargeInPolicy

	// GracePeriod applies under the grace-period policy. Default: 300ms.
	GracePeriod time.Duration

	// MaxHistory bounds the conversation log in turns. Default: 32.
	MaxHistory int

	// MaxContextTokens, when positive, trims the oldest history messages from
	// a generation request until the estimated token count fits.
	MaxContextTokens int

	// SystemPrompt is injected before the history on every generation request.
	SystemPrompt string

	// FallbackReply is spoken when reply generation fails before producing
	// any text.
	FallbackReply string

	// Language is the recognition language hint passed to each segment
	// session. Empty uses the recognizer's default.
	Language string

	// Temperature and MaxTokens pass through to generation requests. Zero
	// values use the provider defaults.
	Temperature float64
	MaxTokens   int
}

// Deps holds the collaborators a Coordinator drives. All are required except
// Metrics and Logger.
type Deps struct {
	STT       stt.Provider
	LLM       llm.Provider
	TTS       tts.Provider
	Voice     tts.VoiceProfile
	Sink      audio.Sink
	Segmenter *segment.Segmenter

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Coordinator owns the turn state machine. It consumes segment boundary
// events from the frame loop, runs recognition per segment, and for each
// finalized user turn drives one agent turn through planning, synthesis, and
// playback — cancelling all of it when the user barges in.
//
// Run is the single event loop; it is the only writer of conversation history
// and the only goroutine that starts agent turns from user speech. Agent
// turns themselves run on background workers tracked by Wait.
type Coordinator struct {
	cfg     Config
	sttP    stt.Provider
	llmP    llm.Provider
	ttsP    tts.Provider
	voice   tts.VoiceProfile
	sink    audio.Sink
	seg     *segment.Segmenter
	metrics *observe.Metrics
	log     *slog.Logger

	history *History

	// agentMu guards agent. The event loop swaps it; workers clear it on
	// completion.
	agentMu sync.Mutex
	agent   *agentTurn

	// user is owned by the event loop between segment-start and segment-end,
	// then handed off to the transcription goroutine.
	user *userTurn

	// skipSegment is set when a segment-start was ignored under the barge-in
	// policy; the rest of that segment's events are dropped.
	skipSegment bool

	// degradedSeen records that the segmenter's switch to fallback detection
	// has already been counted.
	degradedSeen bool

	fatal chan error
	wg    sync.WaitGroup
}

// agentTurn is the in-flight state of one agent turn, shared between the
// event loop (barge-in checks) and the turn's worker goroutine.
type agentTurn struct {
	id    string
	token *CancelToken
	done  chan struct{}

	// heardAt is when the user stopped speaking, for response latency
	// accounting. Zero for turns not triggered by user speech.
	heardAt time.Time

	mu      sync.Mutex
	state   AgentTurnState
	spokeAt time.Time // zero until the first audio reaches the sink
}

func (a *agentTurn) setState(s AgentTurnState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *agentTurn) snapshot() (AgentTurnState, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.spokeAt
}

func (a *agentTurn) markSpeaking(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.spokeAt.IsZero() {
		return false
	}
	a.spokeAt = now
	if a.state == AgentSynthesizing || a.state == AgentPlanning {
		a.state = AgentSpeaking
	}
	return true
}

// userTurn is the in-flight state of one user turn.
type userTurn struct {
	id      string
	state   UserTurnState
	sess    stt.SessionHandle
	heardAt time.Time // when the segment closed
}

// New creates a Coordinator. Returns an error when a required dependency is
// missing.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.STT == nil || deps.LLM == nil || deps.TTS == nil {
		return nil, fmt.Errorf("turn: stt, llm, and tts providers are required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("turn: audio sink is required")
	}
	if deps.Segmenter == nil {
		return nil, fmt.Errorf("turn: segmenter is required")
	}
	if cfg.Policy == "" {
		cfg.Policy = BargeInGrace
	}
	switch cfg.Policy {
	case BargeInAlways, BargeInNever, BargeInGrace:
	default:
		return nil, fmt.Errorf("turn: unknown barge-in policy %q", cfg.Policy)
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = defaultFallbackReply
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		sttP:    deps.STT,
		llmP:    deps.LLM,
		ttsP:    deps.TTS,
		voice:   deps.Voice,
		sink:    deps.Sink,
		seg:     deps.Segmenter,
		metrics: deps.Metrics,
		log:     deps.Logger,
		history: NewHistory(cfg.MaxHistory),
		fatal:   make(chan error, 1),
	}, nil
}

// History returns the conversation log.
func (c *Coordinator) History() *History {
	return c.history
}

// Wait blocks until all background turn workers have finished. Run calls it
// before returning; tests use it to synchronize with the end of an agent
// turn.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// ─── Event loop ───────────────────────────────────────────────────────────────

// Run consumes the inbound frame stream until it closes or ctx is cancelled,
// driving the segmenter and the turn state machine. It returns nil on a clean
// stream end, ctx.Err() on cancellation, or the first session-fatal error
// (sink failure, unrecoverable detection failure).
func (c *Coordinator) Run(ctx context.Context, frames <-chan audio.Frame) error {
	defer c.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.abandonSegment()
			return ctx.Err()
		case err := <-c.fatal:
			c.abandonSegment()
			return err
		case frame, ok := <-frames:
			if !ok {
				// Stream ended: close any open segment so trailing speech is
				// still recognized.
				for _, ev := range c.seg.Flush() {
					if err := c.handleEvent(ctx, ev); err != nil {
						return err
					}
				}
				return nil
			}
			events, err := c.seg.Process(frame)
			if err != nil {
				return fmt.Errorf("turn: segmentation failed: %w", err)
			}
			if c.seg.Degraded() && !c.degradedSeen {
				c.degradedSeen = true
				c.metrics.DegradedDetection.Add(ctx, 1)
			}
			for _, ev := range events {
				if err := c.handleEvent(ctx, ev); err != nil {
					return err
				}
			}
		}
	}
}

// handleEvent applies one segment boundary event to the state machine.
func (c *Coordinator) handleEvent(ctx context.Context, ev segment.Event) error {
	switch ev.Type {
	case segment.SegmentStart:
		return c.onSegmentStart(ctx, ev)
	case segment.SegmentAudio:
		if c.skipSegment || c.user == nil {
			return nil
		}
		for _, f := range ev.Frames {
			if err := c.user.sess.SendAudio(f.Data); err != nil {
				c.log.Warn("dropping frame rejected by recognizer",
					"turn", c.user.id, "error", err)
			}
		}
		return nil
	case segment.SegmentEnd:
		return c.onSegmentEnd(ctx, ev)
	}
	return nil
}

// onSegmentStart applies the barge-in policy, then opens a recognition
// session and begins a new user turn.
func (c *Coordinator) onSegmentStart(ctx context.Context, ev segment.Event) error {
	if active, honored := c.tryBargeIn(ctx); active && !honored {
		// Policy says the agent keeps the floor; drop this whole segment.
		c.skipSegment = true
		c.log.Debug("ignoring user speech during agent turn", "policy", string(c.cfg.Policy))
		return nil
	}

	if len(ev.Frames) == 0 {
		// Detector noise: a start with no audio is not a turn.
		c.skipSegment = true
		return nil
	}
	first := ev.Frames[0]
	sess, err := c.sttP.StartSegment(ctx, stt.SegmentConfig{
		SampleRate: first.SampleRate,
		Channels:   first.Channels,
		Language:   c.cfg.Language,
	})
	if err != nil {
		// Recognition being down is not session-fatal; skip the segment and
		// let the next one retry.
		c.log.Error("failed to open recognition session", "error", err)
		c.skipSegment = true
		return nil
	}

	c.user = &userTurn{id: uuid.NewString(), state: UserListening, sess: sess}
	c.log.Info("user turn started", "turn", c.user.id)
	for _, f := range ev.Frames {
		if err := sess.SendAudio(f.Data); err != nil {
			c.log.Warn("dropping frame rejected by recognizer", "turn", c.user.id, "error", err)
		}
	}
	return nil
}

// onSegmentEnd closes the segment's recognition session and hands the user
// turn to a background goroutine that waits for the final transcript.
func (c *Coordinator) onSegmentEnd(ctx context.Context, ev segment.Event) error {
	if c.skipSegment {
		c.skipSegment = false
		return nil
	}
	ut := c.user
	if ut == nil {
		return nil
	}
	c.user = nil

	for _, f := range ev.Frames {
		if err := ut.sess.SendAudio(f.Data); err != nil {
			c.log.Warn("dropping frame rejected by recognizer", "turn", ut.id, "error", err)
		}
	}
	if err := ut.sess.CloseSend(); err != nil {
		c.log.Error("failed to finalize recognition", "turn", ut.id, "error", err)
		c.discardUserTurn(ctx, ut)
		_ = ut.sess.Close()
		return nil
	}
	ut.state = UserTranscribing
	ut.heardAt = time.Now()

	c.wg.Add(1)
	go c.awaitTranscript(ctx, ut)
	return nil
}

// awaitTranscript waits for the segment's final transcript, then either
// discards the user turn (empty transcript, recognition failure) or
// finalizes it and starts the agent's reply.
func (c *Coordinator) awaitTranscript(ctx context.Context, ut *userTurn) {
	defer c.wg.Done()
	defer ut.sess.Close()

	go func() {
		for p := range ut.sess.Partials() {
			c.log.Debug("partial transcript", "turn", ut.id, "text", p.Text)
		}
	}()

	var text string
	select {
	case <-ctx.Done():
		return
	case final, ok := <-ut.sess.Finals():
		if !ok {
			c.log.Warn("recognition failed, discarding segment", "turn", ut.id)
			c.discardUserTurn(ctx, ut)
			return
		}
		text = strings.TrimSpace(final.Text)
	}
	c.metrics.TranscriptionDuration.Record(ctx, time.Since(ut.heardAt).Seconds())

	if text == "" {
		c.discardUserTurn(ctx, ut)
		return
	}

	ut.state = UserFinalized
	c.history.Append(Turn{ID: ut.id, Role: RoleUser, Text: text, At: time.Now()})
	c.metrics.RecordUserTurn(ctx, "finalized")
	c.log.Info("user turn finalized", "turn", ut.id, "text", text)

	c.startAgentTurn(ctx, ut.heardAt, c.plannerFeed())
}

// discardUserTurn drops a turn that produced no usable speech. Idempotent:
// discarding an already-discarded turn has no further effect.
func (c *Coordinator) discardUserTurn(ctx context.Context, ut *userTurn) {
	if ut.state == UserDiscarded {
		return
	}
	ut.state = UserDiscarded
	c.metrics.RecordUserTurn(ctx, "discarded")
	c.log.Debug("user turn discarded", "turn", ut.id)
}

// abandonSegment closes the recognition session of a segment cut short by
// shutdown.
func (c *Coordinator) abandonSegment() {
	if c.user != nil {
		_ = c.user.sess.Close()
		c.user = nil
	}
}

// ─── Barge-in ─────────────────────────────────────────────────────────────────

// tryBargeIn checks the active agent turn against the interruption policy.
// active reports whether an agent turn currently holds the floor; honored
// reports whether it was interrupted. When honored, the turn's token has been
// fired and the sink flushed before returning, so no further audio for the
// interrupted turn reaches the user.
func (c *Coordinator) tryBargeIn(ctx context.Context) (active, honored bool) {
	c.agentMu.Lock()
	at := c.agent
	c.agentMu.Unlock()
	if at == nil || at.token.Cancelled() {
		return false, false
	}
	state, spokeAt := at.snapshot()
	if state == AgentCompleted {
		return false, false
	}

	switch c.cfg.Policy {
	case BargeInNever:
		return true, false
	case BargeInGrace:
		if spokeAt.IsZero() || time.Since(spokeAt) < c.cfg.GracePeriod {
			return true, false
		}
	}

	at.setState(AgentInterrupted)
	at.token.Cancel()
	c.sink.Flush()
	c.metrics.BargeIns.Add(ctx, 1)
	c.log.Info("barge-in: agent turn interrupted", "turn", at.id)
	return true, true
}

// ─── Agent turns ──────────────────────────────────────────────────────────────

// feedFunc produces the reply sentences for one agent turn, writing them to
// out, and returns the full reply text. It must return promptly once ctx is
// cancelled.
type feedFunc func(ctx context.Context, at *agentTurn, out chan<- tts.Sentence) string

// SayText speaks a fixed line through the synthesis pipeline, bypassing the
// planner. Used for the session greeting. The line is archived in history
// like any generated reply. Blocks until any previous agent turn has
// finished, then returns once the new turn's worker is running.
func (c *Coordinator) SayText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("turn: cannot speak empty text")
	}
	c.startAgentTurn(ctx, time.Time{}, c.literalFeed(text))
	return nil
}

// startAgentTurn creates a new agent turn and launches its worker. If a
// previous agent turn is still winding down it waits for that turn's worker
// first, so two agent turns never write to the sink concurrently.
func (c *Coordinator) startAgentTurn(ctx context.Context, heardAt time.Time, feed feedFunc) {
	for {
		c.agentMu.Lock()
		prev := c.agent
		if prev == nil {
			at := &agentTurn{
				id:      uuid.NewString(),
				token:   NewCancelToken(),
				done:    make(chan struct{}),
				heardAt: heardAt,
				state:   AgentPlanning,
			}
			c.agent = at
			c.agentMu.Unlock()

			c.metrics.ActiveAgentTurns.Add(ctx, 1)
			c.log.Info("agent turn started", "turn", at.id)
			c.wg.Add(1)
			go c.runAgentTurn(ctx, at, feed)
			return
		}
		c.agentMu.Unlock()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return
		}
	}
}

// synthClock stamps each sentence on its way into the synthesizer so the
// arrival of its chunk yields a per-sentence synthesis latency. Safe for
// concurrent use.
type synthClock struct {
	mu    sync.Mutex
	start map[uint64]time.Time
}

func newSynthClock() *synthClock {
	return &synthClock{start: make(map[uint64]time.Time)}
}

func (sc *synthClock) submitted(seq uint64) {
	sc.mu.Lock()
	sc.start[seq] = time.Now()
	sc.mu.Unlock()
}

func (sc *synthClock) elapsed(seq uint64) (time.Duration, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	t0, ok := sc.start[seq]
	if !ok {
		return 0, false
	}
	delete(sc.start, seq)
	return time.Since(t0), true
}

// runAgentTurn drives one agent turn: reply sentences from feed flow into the
// synthesizer, and the synthesized chunks flow to the sink in strict sentence
// order. Cancellation via the turn's token stops every stage within one loop
// iteration and purges queued-but-unplayed audio.
func (c *Coordinator) runAgentTurn(ctx context.Context, at *agentTurn, feed feedFunc) {
	defer c.wg.Done()
	defer close(at.done)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-at.token.Done():
			cancel()
		case <-turnCtx.Done():
		}
	}()

	sentences := make(chan tts.Sentence, sentenceBuf)
	replyCh := make(chan string, 1)
	go func() {
		defer close(sentences)
		replyCh <- feed(turnCtx, at, sentences)
	}()

	clock := newSynthClock()
	ttsIn := make(chan tts.Sentence, sentenceBuf)
	go func() {
		defer close(ttsIn)
		for s := range sentences {
			clock.submitted(s.Seq)
			select {
			case ttsIn <- s:
			case <-turnCtx.Done():
				return
			}
		}
	}()

	chunks, err := c.ttsP.SynthesizeStream(turnCtx, ttsIn, c.voice)
	if err != nil {
		c.log.Error("synthesis stream failed to start", "turn", at.id, "error", err)
		cancel()
		c.finishAgentTurn(ctx, at, <-replyCh, "failed")
		return
	}

	buf := newOrderedBuffer()
	interrupted := false

playout:
	for {
		select {
		case <-at.token.Done():
			interrupted = true
			break playout
		case chunk, ok := <-chunks:
			if !ok {
				break playout
			}
			if d, ok := clock.elapsed(chunk.Seq); ok {
				c.metrics.SynthesisDuration.Record(ctx, d.Seconds())
			}
			for _, rc := range buf.release(chunk) {
				if rc.Err != nil {
					// Per-sentence failure: skip the gap, keep the turn going.
					c.metrics.SynthesisFailures.Add(ctx, 1)
					c.log.Warn("skipping failed synthesis chunk",
						"turn", at.id, "seq", rc.Seq, "error", rc.Err)
					continue
				}
				if at.markSpeaking(time.Now()) {
					c.log.Info("agent speaking", "turn", at.id)
					if !at.heardAt.IsZero() {
						c.metrics.ResponseDuration.Record(ctx, time.Since(at.heardAt).Seconds())
					}
				}
				if err := c.sink.Write(turnCtx, rc.PCM); err != nil {
					if at.token.Cancelled() {
						interrupted = true
						break playout
					}
					if turnCtx.Err() != nil {
						break playout
					}
					c.reportFatal(fmt.Errorf("turn: sink write failed: %w", err))
					// The feed and synthesizer are still producing; stop them
					// and drain their output so this worker can exit.
					cancel()
					go audio.Drain(chunks)
					break playout
				}
			}
		}
	}

	if interrupted {
		// Purge queued-but-unplayed chunks; they belong to a dead turn.
		cancel()
		go audio.Drain(chunks)
	}

	reply := <-replyCh
	outcome := "completed"
	if interrupted {
		outcome = "interrupted"
	}
	c.finishAgentTurn(ctx, at, reply, outcome)
}

// finishAgentTurn archives the turn and releases the active slot.
func (c *Coordinator) finishAgentTurn(ctx context.Context, at *agentTurn, reply, outcome string) {
	interrupted := outcome == "interrupted"
	at.setState(AgentCompleted)

	reply = strings.TrimSpace(reply)
	if reply != "" {
		c.history.Append(Turn{
			ID:          at.id,
			Role:        RoleAgent,
			Text:        reply,
			Interrupted: interrupted,
			At:          time.Now(),
		})
	}
	c.metrics.RecordAgentTurn(ctx, outcome)
	c.metrics.ActiveAgentTurns.Add(ctx, -1)
	c.log.Info("agent turn finished", "turn", at.id, "outcome", outcome)

	c.agentMu.Lock()
	if c.agent == at {
		c.agent = nil
	}
	c.agentMu.Unlock()
}

// reportFatal surfaces a session-ending error to Run. Only the first error
// wins.
func (c *Coordinator) reportFatal(err error) {
	select {
	case c.fatal <- err:
	default:
	}
}

// ─── Reply feeds ──────────────────────────────────────────────────────────────

// plannerFeed streams a generated reply. When generation fails before
// producing any text, the configured fallback line is spoken instead so the
// user is never met with silence.
func (c *Coordinator) plannerFeed() feedFunc {
	return func(ctx context.Context, at *agentTurn, out chan<- tts.Sentence) string {
		planStart := time.Now()
		onFirst := func() {
			at.setState(AgentSynthesizing)
			c.metrics.PlanningDuration.Record(ctx, time.Since(planStart).Seconds())
		}

		stream, err := c.llmP.StreamCompletion(ctx, c.buildRequest())
		if err != nil {
			c.log.Error("reply generation failed, speaking fallback", "turn", at.id, "error", err)
			return c.speakFallback(ctx, out, 0, onFirst)
		}

		text, seq, failed := forwardSentences(ctx, stream, out, 0, onFirst)
		if failed {
			if text == "" {
				c.log.Error("reply stream failed before any text, speaking fallback", "turn", at.id)
				return c.speakFallback(ctx, out, seq, onFirst)
			}
			// Partial reply already spoken; end the turn there.
			c.log.Warn("reply stream failed mid-generation", "turn", at.id)
		}
		return text
	}
}

// speakFallback forwards the fallback reply as sentences starting at seq.
func (c *Coordinator) speakFallback(ctx context.Context, out chan<- tts.Sentence, seq uint64, onFirst func()) string {
	for _, s := range splitSentences(c.cfg.FallbackReply) {
		if onFirst != nil {
			onFirst()
			onFirst = nil
		}
		select {
		case out <- tts.Sentence{Seq: seq, Text: s}:
			seq++
		case <-ctx.Done():
			return c.cfg.FallbackReply
		}
	}
	return c.cfg.FallbackReply
}

// literalFeed speaks a fixed line.
func (c *Coordinator) literalFeed(text string) feedFunc {
	return func(ctx context.Context, at *agentTurn, out chan<- tts.Sentence) string {
		at.setState(AgentSynthesizing)
		var seq uint64
		for _, s := range splitSentences(text) {
			select {
			case out <- tts.Sentence{Seq: seq, Text: s}:
				seq++
			case <-ctx.Done():
				return text
			}
		}
		return text
	}
}

// buildRequest assembles a generation request from an immutable history
// snapshot. When a context budget is configured, the oldest messages are
// trimmed until the estimate fits.
func (c *Coordinator) buildRequest() llm.CompletionRequest {
	snap := c.history.Snapshot()
	msgs := make([]llm.Message, 0, len(snap))
	for _, t := range snap {
		role := llm.RoleUser
		content := t.Text
		if t.Role == RoleAgent {
			role = llm.RoleAssistant
			if t.Interrupted {
				// Let the model know what was actually said out loud.
				content += " [cut off by the user]"
			}
		}
		msgs = append(msgs, llm.Message{Role: role, Content: content})
	}

	if c.cfg.MaxContextTokens > 0 {
		for len(msgs) > 1 {
			n, err := c.llmP.CountTokens(msgs)
			if err != nil || n <= c.cfg.MaxContextTokens {
				break
			}
			msgs = msgs[1:]
		}
	}

	return llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: c.cfg.SystemPrompt,
		Temperature:  c.cfg.Temperature,
		MaxTokens:    c.cfg.MaxTokens,
	}
}
