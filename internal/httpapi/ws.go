package httpapi

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkaran/dispatchsim/internal/audio"
	"github.com/mkaran/dispatchsim/internal/call"
	"github.com/mkaran/dispatchsim/internal/persona"
	"github.com/mkaran/dispatchsim/internal/protocol"
	"github.com/mkaran/dispatchsim/internal/speech"
	"github.com/mkaran/dispatchsim/internal/transcribe"
)

type liveCall struct {
	engine *call.Engine
	pump   *wsPump
	ctx    context.Context
}

func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_id"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_id", "query parameter call_id is required")
		return
	}

	c, err := s.calls.Get(callID)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	if c.State == call.StateEnded {
		respondError(w, http.StatusConflict, "call_ended", "call has already ended")
		return
	}
	if s.liveFor(callID) != nil {
		respondError(w, http.StatusConflict, "call_attached", "a websocket is already attached to this call")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pump := newWSPump(conn, callID, s)
	engine, err := s.buildEngine(c, pump)
	if err != nil {
		log.Printf("call %s: build engine: %v", callID, err)
		pump.SendError("engine_init", "gateway", err.Error(), false)
		return
	}

	lc := &liveCall{engine: engine, pump: pump, ctx: ctx}
	s.mu.Lock()
	s.live[callID] = lc
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.CallEvents.WithLabelValues("ws_connected").Inc()
	}
	pump.SendState(string(c.State), "attached")

	// The trainee may have answered over REST before the socket attached.
	if c.State == call.StateActive {
		if err := engine.Answer(ctx); err != nil {
			log.Printf("call %s: start pipeline: %v", callID, err)
			pump.SendError("engine_start", "gateway", err.Error(), true)
		}
	}

	s.readLoop(ctx, conn, lc)

	cancel()
	s.detach(context.Background(), callID, lc)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, lc *liveCall) {
	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			lc.pump.SendError("invalid_client_message", "gateway", err.Error(), false)
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientAudioChunk:
			lc.pump.countInbound(protocol.TypeClientAudioChunk)
			s.handleInboundAudio(ctx, lc, msg)
		case protocol.ClientControl:
			lc.pump.countInbound(protocol.TypeClientControl)
			if _, err := s.applyControl(ctx, lc.pump.callID, msg.Action); err != nil {
				lc.pump.SendError("control_failed", "gateway", err.Error(), false)
			}
		case protocol.ClientPlayedClip:
			lc.pump.countInbound(protocol.TypeClientPlayedClip)
			lc.pump.ackClip(msg.Seq)
		}
	}
}

func (s *Server) handleInboundAudio(ctx context.Context, lc *liveCall, msg protocol.ClientAudioChunk) {
	c, err := s.calls.Get(lc.pump.callID)
	if err != nil || c.State != call.StateActive {
		return
	}
	frame, err := audio.DecodeFrame(msg.PCM16Base64, msg.SampleRate)
	if err != nil {
		lc.pump.SendError("invalid_audio", "gateway", err.Error(), false)
		return
	}
	s.capture.Write(frame.PCM)
	lc.pump.SendMicLevel(audio.Level(frame.PCM))
	if err := lc.engine.HandleAudio(ctx, frame.PCM); err != nil {
		lc.pump.SendError("audio_forward", "stt", err.Error(), true)
	}
}

// detach tears down the live pipeline when the websocket goes away. The call
// record ends too; a dropped browser should not leave a caller ringing.
func (s *Server) detach(ctx context.Context, callID string, lc *liveCall) {
	s.mu.Lock()
	if s.live[callID] == lc {
		delete(s.live, callID)
	}
	s.mu.Unlock()

	lc.engine.Hangup(ctx)
	if c, err := s.calls.Get(callID); err == nil && c.State != call.StateEnded {
		_, _ = s.calls.Hangup(callID)
	}
	if s.metrics != nil {
		s.metrics.CallEvents.WithLabelValues("ws_disconnected").Inc()
		s.metrics.ActiveCalls.Set(float64(s.calls.ActiveCount()))
	}
}

func (s *Server) buildEngine(c *call.Call, pump *wsPump) (*call.Engine, error) {
	sc, err := s.scenarios.Get(context.Background(), c.ScenarioID)
	if err != nil {
		return nil, err
	}
	profile := sc.Profile()
	profile.Address = c.Address

	transcriber := transcribe.NewManager(s.providers.STT, transcribe.ManagerConfig{
		CallID:      c.ID,
		SampleRate:  16000,
		MaxAttempts: s.cfg.ReconnectMaxAttempts,
		BaseDelay:   s.cfg.ReconnectBaseDelay,
		OnReconnect: func(outcome string) {
			if s.metrics != nil {
				s.metrics.STTReconnects.WithLabelValues(outcome).Inc()
			}
		},
	})
	orchestrator := persona.NewOrchestrator(s.providers.Generator, profile, persona.Identity{
		CallbackNumber: c.CallbackNumber,
		Address:        c.Address,
	})

	return call.NewEngine(call.EngineConfig{
		CallID:               c.ID,
		Cooperation:          c.Cooperation,
		Manager:              s.calls,
		Transcriber:          transcriber,
		Orchestrator:         orchestrator,
		Synthesizer:          s.providers.Synthesizer,
		Player:               pump,
		Sink:                 pump,
		Prefetch:             s.cfg.SynthPrefetch,
		InterruptionMinChars: s.cfg.InterruptionMinChars,
		SilenceArmDelay:      s.cfg.SilenceArmDelay,
		SilenceTimeout:       s.cfg.SilenceTimeoutFor(c.Cooperation),
		Recorder:             s.recordTurn(c.ID),
		Metrics:              s.metrics,
		Stages:               s.stages,
	}), nil
}

// wsPump is the single writer for one call websocket. It carries engine
// events to the client and doubles as the speech player: caller audio is
// played by shipping each clip to the browser, text first so the transcript
// stays in sync.
type wsPump struct {
	conn   *websocket.Conn
	callID string
	server *Server

	writeMu sync.Mutex

	ackMu       sync.Mutex
	acks        map[int]chan struct{}
	lastLevelAt time.Time
}

func newWSPump(conn *websocket.Conn, callID string, server *Server) *wsPump {
	return &wsPump{
		conn:   conn,
		callID: callID,
		server: server,
		acks:   make(map[int]chan struct{}),
	}
}

func (p *wsPump) ackClip(seq int) {
	p.ackMu.Lock()
	defer p.ackMu.Unlock()
	if ch, ok := p.acks[seq]; ok {
		close(ch)
		delete(p.acks, seq)
	}
}

func (p *wsPump) awaitAck(seq int) chan struct{} {
	p.ackMu.Lock()
	defer p.ackMu.Unlock()
	ch := make(chan struct{})
	p.acks[seq] = ch
	return ch
}

func (p *wsPump) dropAck(seq int) {
	p.ackMu.Lock()
	defer p.ackMu.Unlock()
	delete(p.acks, seq)
}

func (p *wsPump) writeJSON(msgType protocol.MessageType, v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := p.conn.WriteJSON(v); err != nil {
		return err
	}
	if p.server.metrics != nil {
		p.server.metrics.WSMessages.WithLabelValues("outbound", string(msgType)).Inc()
	}
	return nil
}

func (p *wsPump) countInbound(msgType protocol.MessageType) {
	if p.server.metrics != nil {
		p.server.metrics.WSMessages.WithLabelValues("inbound", string(msgType)).Inc()
	}
}

// Play ships one synthesized sentence, text before audio so the transcript
// stays in sync, then blocks until the browser reports the clip finished.
// A cancelled context (barge-in, hangup) releases the wait; so does a stale
// client that never acks.
func (p *wsPump) Play(ctx context.Context, clip speech.Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ack := p.awaitAck(clip.Seq)
	defer p.dropAck(clip.Seq)

	if err := p.writeJSON(protocol.TypeCallerSentence, protocol.CallerSentence{
		Type:   protocol.TypeCallerSentence,
		CallID: p.callID,
		Seq:    clip.Seq,
		Text:   clip.Text,
	}); err != nil {
		return err
	}
	if err := p.writeJSON(protocol.TypeCallerAudio, protocol.CallerAudioChunk{
		Type:        protocol.TypeCallerAudio,
		CallID:      p.callID,
		Seq:         clip.Seq,
		Format:      clip.Format,
		AudioBase64: base64.StdEncoding.EncodeToString(clip.Audio),
	}); err != nil {
		return err
	}

	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ack:
		return nil
	case <-timer.C:
		return nil
	}
}

// SendMicLevel forwards the dispatcher mic level, throttled so a flood of
// small frames does not swamp the socket.
func (p *wsPump) SendMicLevel(level float64) {
	p.ackMu.Lock()
	now := time.Now()
	if now.Sub(p.lastLevelAt) < 200*time.Millisecond {
		p.ackMu.Unlock()
		return
	}
	p.lastLevelAt = now
	p.ackMu.Unlock()

	p.sendMicLevelNow(level)
}

func (p *wsPump) sendMicLevelNow(level float64) {
	_ = p.writeJSON(protocol.TypeMicLevel, protocol.MicLevel{
		Type:   protocol.TypeMicLevel,
		CallID: p.callID,
		Level:  level,
		TSMs:   time.Now().UnixMilli(),
	})
}

func (p *wsPump) SendPartial(text string, confidence float64) {
	_ = p.writeJSON(protocol.TypeSTTPartial, protocol.STTPartial{
		Type:       protocol.TypeSTTPartial,
		CallID:     p.callID,
		Text:       text,
		Confidence: confidence,
		TSMs:       time.Now().UnixMilli(),
	})
}

func (p *wsPump) SendCommitted(text string) {
	_ = p.writeJSON(protocol.TypeSTTCommitted, protocol.STTCommitted{
		Type:   protocol.TypeSTTCommitted,
		CallID: p.callID,
		Text:   text,
		TSMs:   time.Now().UnixMilli(),
	})
}

func (p *wsPump) SendTurnEnd(turnID, reason string) {
	_ = p.writeJSON(protocol.TypeCallerTurnEnd, protocol.CallerTurnEnd{
		Type:   protocol.TypeCallerTurnEnd,
		CallID: p.callID,
		TurnID: turnID,
		Reason: reason,
	})
}

func (p *wsPump) SendState(state, detail string) {
	_ = p.writeJSON(protocol.TypeCallState, protocol.CallState{
		Type:   protocol.TypeCallState,
		CallID: p.callID,
		State:  state,
		Detail: detail,
	})
}

func (p *wsPump) SendSystem(code, detail string) {
	_ = p.writeJSON(protocol.TypeSystemEvent, protocol.SystemEvent{
		Type:   protocol.TypeSystemEvent,
		CallID: p.callID,
		Code:   code,
		Detail: detail,
	})
}

func (p *wsPump) SendError(code, source, detail string, retryable bool) {
	_ = p.writeJSON(protocol.TypeErrorEvent, protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		CallID:    p.callID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	})
}
