package call

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkaran/dispatchsim/internal/observability"
	"github.com/mkaran/dispatchsim/internal/persona"
	"github.com/mkaran/dispatchsim/internal/speech"
	"github.com/mkaran/dispatchsim/internal/transcribe"
)

// Sink receives the engine's client-facing events. The websocket layer
// implements it; sentence text and audio travel separately through the
// speech.Player the engine's pipeline was built with.
type Sink interface {
	SendPartial(text string, confidence float64)
	SendCommitted(text string)
	SendTurnEnd(turnID, reason string)
	SendSystem(code, detail string)
	SendError(code, source, detail string, retryable bool)
}

// Turn end reasons reported through the sink.
const (
	TurnReasonComplete    = "complete"
	TurnReasonInterrupted = "interrupted"
)

type EngineConfig struct {
	CallID      string
	Cooperation int

	Manager      *Manager
	Transcriber  *transcribe.Manager
	Orchestrator *persona.Orchestrator
	Synthesizer  speech.Synthesizer
	Player       speech.Player
	Sink         Sink

	Prefetch             int
	InterruptionMinChars int
	SilenceArmDelay      time.Duration
	SilenceTimeout       time.Duration

	// Recorder persists finished turns; role is "dispatcher" or "caller".
	Recorder func(role, text string)

	Metrics *observability.Metrics
	Stages  *observability.StageWindow
}

// Engine drives one call: dispatcher audio in, caller sentences out. It owns
// the turn lifecycle, barge-in interruption, and the silence timer that makes
// the caller speak up when the dispatcher goes quiet.
type Engine struct {
	cfg     EngineConfig
	pipe    *speech.Pipeline
	silence *SilenceMonitor

	mu      sync.Mutex
	history []persona.Message
	turn    *turnState
	stopped bool
}

// turnState holds the mutable state of one caller turn. A superseded turn's
// goroutine keeps a pointer to its own turnState and can only touch that;
// anything acting on the live turn compares against e.turn first, so a stale
// goroutine can never finish or mark up its replacement.
type turnState struct {
	id         string
	cancel     context.CancelFunc
	commitAt   time.Time
	firstAudio bool
	generating bool
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{cfg: cfg}
	e.silence = NewSilenceMonitor(e.onSilenceTimeout)
	e.pipe = speech.NewPipeline(speech.PipelineConfig{
		Synthesizer: cfg.Synthesizer,
		Player:      cfg.Player,
		Prefetch:    cfg.Prefetch,
		OnSpoken:    e.onSpoken,
		OnDrained:   e.onDrained,
		OnCancelled: func(dropped int) {
			if cfg.Metrics != nil {
				cfg.Metrics.SentencesCancelled.Add(float64(dropped))
			}
		},
		OnSynthLatency: func(d time.Duration) {
			if cfg.Metrics != nil {
				cfg.Metrics.ObserveSynthLatency(d)
			}
			if cfg.Stages != nil {
				cfg.Stages.Observe("sentence_to_audio_ready", float64(d.Milliseconds()))
			}
		},
		OnError: func(seq int, _ string, err error) {
			if cfg.Metrics != nil {
				cfg.Metrics.ProviderErrors.WithLabelValues("tts", "synthesis_failed").Inc()
			}
			cfg.Sink.SendError("synthesis_failed", "tts", err.Error(), true)
		},
	})
	return e
}

// Answer starts the transcription stream and arms the silence timer so the
// caller re-engages if the dispatcher answers and says nothing.
func (e *Engine) Answer(ctx context.Context) error {
	if err := e.cfg.Transcriber.Start(ctx); err != nil {
		return err
	}
	go e.eventLoop(ctx)
	e.armSilence()
	return nil
}

func (e *Engine) HandleAudio(ctx context.Context, pcm []byte) error {
	return e.cfg.Transcriber.SendAudio(ctx, pcm)
}

func (e *Engine) Pause() {
	e.cfg.Transcriber.Pause()
	e.silence.Disarm()
	e.cancelTurn(TurnReasonInterrupted)
}

func (e *Engine) Resume() {
	e.cfg.Transcriber.Resume()
	e.armSilence()
}

// Hangup tears the engine down. Safe to call more than once.
func (e *Engine) Hangup(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	var cancel context.CancelFunc
	if e.turn != nil {
		cancel = e.turn.cancel
	}
	e.mu.Unlock()

	e.silence.Disarm()
	if cancel != nil {
		cancel()
	}
	e.cfg.Transcriber.Stop(ctx)
	e.pipe.CancelAll()
	e.pipe.Close()
}

func (e *Engine) eventLoop(ctx context.Context) {
	for ev := range e.cfg.Transcriber.Events() {
		switch ev.Type {
		case transcribe.EventPartial:
			e.handlePartial(ev)
		case transcribe.EventCommitted:
			e.handleCommitted(ctx, ev)
		case transcribe.EventSpeechStarted:
			e.silence.Disarm()
		case transcribe.EventError:
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.ProviderErrors.WithLabelValues("stt", ev.Code).Inc()
			}
			e.cfg.Sink.SendError(ev.Code, "stt", ev.Detail, ev.Retryable)
		case transcribe.EventClosed:
			e.cfg.Sink.SendSystem("stt_closed", ev.Detail)
		}
	}

	// The event channel only closes when we stopped the stream ourselves or
	// the transcriber gave up. In the latter case the call cannot continue;
	// force it to ended rather than leaving it stuck active.
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}
	e.cfg.Sink.SendSystem("call_ended", "transcription stream closed")
	if _, err := e.cfg.Manager.Hangup(e.cfg.CallID); err != nil {
		log.Printf("call %s: hangup after stt close: %v", e.cfg.CallID, err)
	}
	e.Hangup(context.Background())
}

// handlePartial interrupts caller playback as soon as the dispatcher has
// clearly started talking over it. A couple of characters is noise; anything
// longer is a barge-in.
func (e *Engine) handlePartial(ev transcribe.Event) {
	e.silence.Disarm()
	e.cfg.Sink.SendPartial(ev.Text, ev.Confidence)

	if len(strings.TrimSpace(ev.Text)) <= e.cfg.InterruptionMinChars {
		return
	}
	if e.pipe.Pending() == 0 {
		return
	}

	e.cancelTurn(TurnReasonInterrupted)
	if err := e.cfg.Manager.RecordInterruption(e.cfg.CallID); err != nil {
		log.Printf("call %s: record interruption: %v", e.cfg.CallID, err)
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.Interruptions.Inc()
	}
	if e.cfg.Stages != nil {
		e.cfg.Stages.ObserveIndicator("caller_interrupted")
	}
}

func (e *Engine) handleCommitted(ctx context.Context, ev transcribe.Event) {
	e.silence.Disarm()
	e.cfg.Sink.SendCommitted(ev.Text)
	if e.cfg.Recorder != nil {
		e.cfg.Recorder("dispatcher", ev.Text)
	}
	e.startTurn(ctx, ev.Text, false)
}

// startTurn launches caller response generation, replacing any turn still
// in flight.
func (e *Engine) startTurn(ctx context.Context, userText string, isNudge bool) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if e.turn != nil && e.turn.cancel != nil {
		e.turn.cancel()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	ts := &turnState{
		id:         uuid.NewString(),
		cancel:     cancel,
		commitAt:   time.Now(),
		generating: true,
	}
	e.turn = ts
	history := make([]persona.Message, len(e.history))
	copy(history, e.history)
	e.mu.Unlock()

	go func() {
		full, err := e.cfg.Orchestrator.Respond(turnCtx, history, userText, persona.Events{
			OnSentence: func(_ int, text string) {
				e.pipe.Enqueue(text)
			},
			OnSilence: func() {
				e.cfg.Sink.SendSystem("caller_silent", "")
				e.armSilence()
			},
			OnAbort: func(reason string) {
				e.pipe.CancelAll()
				if e.cfg.Metrics != nil {
					e.cfg.Metrics.GuardRegenerations.Inc()
				}
				e.cfg.Sink.SendSystem("caller_regenerated", reason)
			},
		})
		if err != nil {
			e.mu.Lock()
			ts.generating = false
			e.mu.Unlock()
			if turnCtx.Err() == nil {
				log.Printf("call %s: turn failed: %v", e.cfg.CallID, err)
				e.cfg.Sink.SendError("turn_failed", "persona", err.Error(), true)
			}
			return
		}

		e.mu.Lock()
		if e.turn == ts && !e.stopped {
			e.history = append(e.history,
				persona.Message{Role: persona.RoleUser, Content: userText},
				persona.Message{Role: persona.RoleAssistant, Content: full},
			)
		}
		ts.generating = false
		e.mu.Unlock()

		if full != "" && e.cfg.Recorder != nil {
			e.cfg.Recorder("caller", full)
		}
		if !isNudge {
			if err := e.cfg.Manager.RecordTurn(e.cfg.CallID); err != nil {
				log.Printf("call %s: record turn: %v", e.cfg.CallID, err)
			}
		}

		// If every sentence already finished playing, the drain callback
		// ran before generation wrapped up and skipped the turn end.
		e.maybeFinishTurn()
	}()
}

func (e *Engine) cancelTurn(reason string) {
	e.mu.Lock()
	ts := e.turn
	e.turn = nil
	e.mu.Unlock()

	if ts != nil && ts.cancel != nil {
		ts.cancel()
	}
	e.pipe.CancelAll()
	if ts != nil {
		e.cfg.Sink.SendTurnEnd(ts.id, reason)
	}
}

func (e *Engine) onSpoken(_ int, _ string) {
	e.mu.Lock()
	var first bool
	var commitAt time.Time
	if ts := e.turn; ts != nil && !ts.firstAudio {
		ts.firstAudio = true
		first = true
		commitAt = ts.commitAt
	}
	e.mu.Unlock()

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SentencesSpoken.Inc()
	}
	if first && !commitAt.IsZero() {
		latency := time.Since(commitAt)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.ObserveFirstAudioLatency(latency)
		}
		if e.cfg.Stages != nil {
			e.cfg.Stages.Observe("commit_to_first_audio", float64(latency.Milliseconds()))
		}
	}
}

// onDrained fires when the last queued sentence finished playing.
func (e *Engine) onDrained() {
	e.maybeFinishTurn()
}

// maybeFinishTurn closes the turn once generation is done and every sentence
// has been played. The turn is over from the trainee's point of view, and
// the silence clock starts.
func (e *Engine) maybeFinishTurn() {
	if e.pipe.Pending() != 0 {
		return
	}
	e.mu.Lock()
	ts := e.turn
	if ts == nil || ts.generating || e.stopped {
		e.mu.Unlock()
		return
	}
	e.turn = nil
	e.mu.Unlock()

	e.cfg.Sink.SendTurnEnd(ts.id, TurnReasonComplete)
	if e.cfg.Stages != nil && !ts.commitAt.IsZero() {
		e.cfg.Stages.Observe("turn_total", float64(time.Since(ts.commitAt).Milliseconds()))
	}
	e.armSilence()
}

func (e *Engine) onSilenceTimeout() {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SilencePrompts.Inc()
	}
	e.cfg.Sink.SendSystem("silence_prompt", "")
	e.startTurn(context.Background(), persona.ContinuationPrompt(e.cfg.Cooperation), true)
}

func (e *Engine) armSilence() {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}
	e.silence.Arm(e.cfg.SilenceArmDelay + e.cfg.SilenceTimeout)
}
