package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkaran/dispatchsim/internal/persona"
	"github.com/mkaran/dispatchsim/internal/speech"
	"github.com/mkaran/dispatchsim/internal/transcribe"
)

type scriptStream struct {
	events chan transcribe.Event
	once   sync.Once
}

func (s *scriptStream) SendAudio(context.Context, []byte) error { return nil }

func (s *scriptStream) Finish(context.Context) error {
	s.once.Do(func() {
		s.events <- transcribe.Event{Type: transcribe.EventClosed, Code: "1000"}
		close(s.events)
	})
	return nil
}

func (s *scriptStream) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type scriptProvider struct {
	stream *scriptStream
}

func newScriptProvider() *scriptProvider {
	return &scriptProvider{stream: &scriptStream{events: make(chan transcribe.Event, 64)}}
}

func (p *scriptProvider) Connect(context.Context, string, int) (transcribe.Stream, <-chan transcribe.Event, error) {
	return p.stream, p.stream.events, nil
}

func (p *scriptProvider) push(ev transcribe.Event) {
	p.stream.events <- ev
}

type recordingSink struct {
	mu        sync.Mutex
	partials  []string
	committed []string
	turnEnds  []string
	systems   []string
	errors    []string
}

func (s *recordingSink) SendPartial(text string, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partials = append(s.partials, text)
}

func (s *recordingSink) SendCommitted(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, text)
}

func (s *recordingSink) SendTurnEnd(_, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnEnds = append(s.turnEnds, reason)
}

func (s *recordingSink) SendSystem(code, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systems = append(s.systems, code)
}

func (s *recordingSink) SendError(code, _, _ string, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, code)
}

func (s *recordingSink) turnEndReasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.turnEnds))
	copy(out, s.turnEnds)
	return out
}

func (s *recordingSink) systemCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.systems))
	copy(out, s.systems)
	return out
}

type testPlayer struct {
	mu          sync.Mutex
	played      []string
	holding     bool
	release     chan struct{}
	started     chan struct{}
	interrupted int
}

func newTestPlayer(holding bool) *testPlayer {
	return &testPlayer{
		holding: holding,
		release: make(chan struct{}),
		started: make(chan struct{}, 32),
	}
}

func (p *testPlayer) Play(ctx context.Context, clip speech.Clip) error {
	select {
	case p.started <- struct{}{}:
	default:
	}
	p.mu.Lock()
	holding := p.holding
	p.mu.Unlock()
	if holding {
		select {
		case <-p.release:
		case <-ctx.Done():
			p.mu.Lock()
			p.interrupted++
			p.mu.Unlock()
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.played = append(p.played, clip.Text)
	p.mu.Unlock()
	return nil
}

func (p *testPlayer) playedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

func (p *testPlayer) interruptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

type recordedTurn struct {
	role string
	text string
}

type turnRecorder struct {
	mu    sync.Mutex
	turns []recordedTurn
}

func (r *turnRecorder) record(role, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, recordedTurn{role: role, text: text})
}

func (r *turnRecorder) snapshot() []recordedTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedTurn, len(r.turns))
	copy(out, r.turns)
	return out
}

// gatedGenerator blocks each Stream call until the test releases it, so
// tests can overlap generations deliberately. Call i streams scripts[i] as
// one delta once release[i] is closed, regardless of context state.
type gatedGenerator struct {
	mu      sync.Mutex
	calls   int
	entered chan int
	release []chan struct{}
	scripts []string
}

func (g *gatedGenerator) Stream(_ context.Context, _ persona.Request, onDelta persona.DeltaHandler) (persona.Response, error) {
	g.mu.Lock()
	i := g.calls
	g.calls++
	g.mu.Unlock()

	g.entered <- i
	<-g.release[i]
	text := g.scripts[i]
	if text != "" {
		if err := onDelta(text); err != nil {
			return persona.Response{}, err
		}
	}
	return persona.Response{Text: text}, nil
}

func (g *gatedGenerator) Complete(context.Context, persona.Request) (persona.Response, error) {
	return persona.Response{}, errors.New("complete not scripted")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type engineFixture struct {
	engine   *Engine
	manager  *Manager
	call     *Call
	provider *scriptProvider
	sink     *recordingSink
	player   *testPlayer
	recorder *turnRecorder
}

func newEngineFixture(t *testing.T, script string, holding bool, silenceTimeout time.Duration) *engineFixture {
	t.Helper()
	return newEngineFixtureWithGen(t, persona.NewMockGenerator(script), holding, silenceTimeout)
}

func newEngineFixtureWithGen(t *testing.T, gen persona.Generator, holding bool, silenceTimeout time.Duration) *engineFixture {
	t.Helper()
	manager := NewManager(time.Minute)
	c := manager.Create("sc1", "Sarah", "555-201-4321", "42 Oak Street", 40)

	provider := newScriptProvider()
	sink := &recordingSink{}
	player := newTestPlayer(holding)
	recorder := &turnRecorder{}

	profile := persona.Profile{CallerName: "Sarah", Situation: "intruder", Address: "42 Oak Street", Cooperation: 40}
	identity := persona.Identity{CallbackNumber: "555-201-4321", Address: "42 Oak Street"}

	e := NewEngine(EngineConfig{
		CallID:      c.ID,
		Cooperation: 40,
		Manager:     manager,
		Transcriber: transcribe.NewManager(provider, transcribe.ManagerConfig{
			CallID:      c.ID,
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
		}),
		Orchestrator:         persona.NewOrchestrator(gen, profile, identity),
		Synthesizer:          speech.NewMockSynthesizer(),
		Player:               player,
		Sink:                 sink,
		Prefetch:             3,
		InterruptionMinChars: 2,
		SilenceArmDelay:      time.Millisecond,
		SilenceTimeout:       silenceTimeout,
		Recorder:             recorder.record,
	})
	return &engineFixture{engine: e, manager: manager, call: c, provider: provider, sink: sink, player: player, recorder: recorder}
}

func TestEngineTurnRoundTrip(t *testing.T) {
	f := newEngineFixture(t, "Hurry! He's bleeding badly. ", false, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	defer f.engine.Hangup(context.Background())

	f.provider.push(transcribe.Event{Type: transcribe.EventCommitted, Text: "911, what's your emergency?"})

	waitFor(t, "caller sentences played", func() bool { return len(f.player.playedTexts()) == 2 })
	got := f.player.playedTexts()
	if got[0] != "Hurry!" || got[1] != "He's bleeding badly." {
		t.Fatalf("played = %q", got)
	}

	waitFor(t, "turn end", func() bool { return len(f.sink.turnEndReasons()) == 1 })
	if f.sink.turnEndReasons()[0] != TurnReasonComplete {
		t.Fatalf("turn end reason = %q", f.sink.turnEndReasons()[0])
	}

	waitFor(t, "turns recorded", func() bool { return len(f.recorder.snapshot()) == 2 })
	turns := f.recorder.snapshot()
	if turns[0].role != "dispatcher" || turns[1].role != "caller" {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[1].text != "Hurry! He's bleeding badly." {
		t.Fatalf("caller turn = %q", turns[1].text)
	}

	waitFor(t, "turn counted", func() bool {
		c, err := f.manager.Get(f.call.ID)
		return err == nil && c.TurnCount == 1
	})
}

func TestEngineInterruptsPlaybackOnPartial(t *testing.T) {
	f := newEngineFixture(t, "I need help right now. Please hurry over here. ", true, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	defer f.engine.Hangup(context.Background())

	f.provider.push(transcribe.Event{Type: transcribe.EventCommitted, Text: "Tell me what happened."})

	select {
	case <-f.player.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("caller audio never started")
	}

	f.provider.push(transcribe.Event{Type: transcribe.EventPartial, Text: "okay stop", Confidence: 0.8})

	waitFor(t, "playback interrupted", func() bool { return f.player.interruptions() == 1 })
	waitFor(t, "interrupted turn end", func() bool {
		for _, r := range f.sink.turnEndReasons() {
			if r == TurnReasonInterrupted {
				return true
			}
		}
		return false
	})
	waitFor(t, "interruption counted", func() bool {
		c, err := f.manager.Get(f.call.ID)
		return err == nil && c.InterruptionCount == 1
	})
	if len(f.player.playedTexts()) != 0 {
		t.Fatalf("played after interruption = %q", f.player.playedTexts())
	}
}

func TestEngineShortPartialDoesNotInterrupt(t *testing.T) {
	f := newEngineFixture(t, "He's in the kitchen with a knife. ", true, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	defer f.engine.Hangup(context.Background())

	f.provider.push(transcribe.Event{Type: transcribe.EventCommitted, Text: "Where is he?"})
	select {
	case <-f.player.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("caller audio never started")
	}

	f.provider.push(transcribe.Event{Type: transcribe.EventPartial, Text: "um", Confidence: 0.4})
	time.Sleep(30 * time.Millisecond)
	if f.player.interruptions() != 0 {
		t.Fatalf("short partial interrupted playback")
	}
}

func TestEngineEndsCallWhenTranscriptionDies(t *testing.T) {
	f := newEngineFixture(t, "What's taking so long? ", false, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// A terminal close the manager will not retry.
	f.provider.push(transcribe.Event{Type: transcribe.EventClosed, Code: "4000", Retryable: false})

	waitFor(t, "call forced to ended", func() bool {
		c, err := f.manager.Get(f.call.ID)
		return err == nil && c.State == StateEnded
	})
	waitFor(t, "end notified", func() bool {
		for _, code := range f.sink.systemCodes() {
			if code == "call_ended" {
				return true
			}
		}
		return false
	})
}

func TestEngineSilenceTimeoutNudgesCaller(t *testing.T) {
	f := newEngineFixture(t, "Hello? Are you still there? ", false, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	defer f.engine.Hangup(context.Background())

	// No dispatcher input at all; the silence timer armed by Answer fires
	// and the caller speaks first.
	waitFor(t, "silence prompt", func() bool {
		for _, code := range f.sink.systemCodes() {
			if code == "silence_prompt" {
				return true
			}
		}
		return false
	})
	waitFor(t, "nudge sentences played", func() bool { return len(f.player.playedTexts()) >= 2 })
	got := f.player.playedTexts()
	if got[0] != "Hello?" {
		t.Fatalf("played = %q", got)
	}
}

func TestEngineSupersededTurnCannotFinishReplacement(t *testing.T) {
	gen := &gatedGenerator{
		entered: make(chan int, 4),
		release: []chan struct{}{make(chan struct{}), make(chan struct{})},
		scripts: []string{"", "He's coming up the stairs! Please send someone. "},
	}
	f := newEngineFixtureWithGen(t, gen, false, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	defer f.engine.Hangup(context.Background())

	f.provider.push(transcribe.Event{Type: transcribe.EventCommitted, Text: "Are you still with me?"})
	if i := <-gen.entered; i != 0 {
		t.Fatalf("first stream call = %d, want 0", i)
	}

	// A second committed transcript replaces the turn while the first one
	// is still generating.
	f.provider.push(transcribe.Event{Type: transcribe.EventCommitted, Text: "Is he inside the house?"})
	if i := <-gen.entered; i != 1 {
		t.Fatalf("second stream call = %d, want 1", i)
	}

	// Let the stale generation run to completion while the replacement is
	// still mid-stream. It must not close the replacement's turn.
	close(gen.release[0])
	time.Sleep(30 * time.Millisecond)
	if got := f.sink.turnEndReasons(); len(got) != 0 {
		t.Fatalf("turn ended while replacement was generating: %v", got)
	}

	close(gen.release[1])
	waitFor(t, "replacement sentences played", func() bool { return len(f.player.playedTexts()) == 2 })
	got := f.player.playedTexts()
	if got[0] != "He's coming up the stairs!" || got[1] != "Please send someone." {
		t.Fatalf("played = %q", got)
	}

	waitFor(t, "replacement turn end", func() bool { return len(f.sink.turnEndReasons()) == 1 })
	if f.sink.turnEndReasons()[0] != TurnReasonComplete {
		t.Fatalf("turn end reason = %q", f.sink.turnEndReasons()[0])
	}
	time.Sleep(30 * time.Millisecond)
	if got := f.sink.turnEndReasons(); len(got) != 1 {
		t.Fatalf("turn ends = %v, want exactly one", got)
	}

	waitFor(t, "caller turn recorded", func() bool {
		for _, turn := range f.recorder.snapshot() {
			if turn.role == "caller" {
				return turn.text == "He's coming up the stairs! Please send someone."
			}
		}
		return false
	})
}

func TestEngineRecordsSilentTurn(t *testing.T) {
	f := newEngineFixture(t, "... ", false, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	defer f.engine.Hangup(context.Background())

	f.provider.push(transcribe.Event{Type: transcribe.EventCommitted, Text: "Can you hear me?"})

	waitFor(t, "silent caller event", func() bool {
		for _, code := range f.sink.systemCodes() {
			if code == "caller_silent" {
				return true
			}
		}
		return false
	})
	waitFor(t, "silent turn recorded", func() bool {
		turns := f.recorder.snapshot()
		return len(turns) == 2 && turns[1].role == "caller" && turns[1].text == "..."
	})
	if got := f.player.playedTexts(); len(got) != 0 {
		t.Fatalf("played = %q, want none for a silent turn", got)
	}
}
