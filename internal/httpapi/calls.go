package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkaran/dispatchsim/internal/call"
	"github.com/mkaran/dispatchsim/internal/history"
	"github.com/mkaran/dispatchsim/internal/persona"
	"github.com/mkaran/dispatchsim/internal/protocol"
	"github.com/mkaran/dispatchsim/internal/scenario"
)

type createCallRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type createCallResponse struct {
	*call.Call
	WSPath string `json:"ws_path"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ScenarioID) == "" {
		req.ScenarioID = "home-intruder"
	}

	sc, err := s.scenarios.Get(r.Context(), req.ScenarioID)
	if err != nil {
		if errors.Is(err, scenario.ErrNotFound) {
			respondError(w, http.StatusNotFound, "scenario_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "scenario_store", err.Error())
		return
	}

	identity := persona.NewIdentity(sc.Address)
	c := s.calls.Create(sc.ID, sc.CallerName, identity.CallbackNumber, identity.Address, sc.Cooperation)
	if s.metrics != nil {
		s.metrics.CallEvents.WithLabelValues("created").Inc()
		s.metrics.ActiveCalls.Set(float64(s.calls.ActiveCount()))
	}

	respondJSON(w, http.StatusCreated, createCallResponse{
		Call:   c,
		WSPath: "/v1/call/ws?call_id=" + c.ID,
	})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	c, err := s.calls.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := s.applyControl(r.Context(), id, action)
		if err != nil {
			status := http.StatusInternalServerError
			code := "control_failed"
			switch {
			case errors.Is(err, call.ErrNotFound):
				status, code = http.StatusNotFound, "call_not_found"
			case errors.Is(err, call.ErrInvalidTransition):
				status, code = http.StatusConflict, "invalid_transition"
			}
			respondError(w, status, code, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, c)
	}
}

// applyControl drives the call state machine and, when a websocket is
// attached, the live engine with it. REST and websocket controls share this
// path so both surfaces see identical transitions.
func (s *Server) applyControl(ctx context.Context, callID, action string) (*call.Call, error) {
	lc := s.liveFor(callID)

	var (
		c   *call.Call
		err error
	)
	switch action {
	case protocol.ActionAnswer:
		c, err = s.calls.Answer(callID)
		if err == nil && lc != nil {
			if startErr := lc.engine.Answer(lc.ctx); startErr != nil {
				return nil, startErr
			}
		}
	case protocol.ActionPause:
		c, err = s.calls.Pause(callID)
		if err == nil && lc != nil {
			lc.engine.Pause()
			// The mic meter should drop to zero while paused.
			lc.pump.sendMicLevelNow(0)
		}
	case protocol.ActionResume:
		c, err = s.calls.Resume(callID)
		if err == nil && lc != nil {
			lc.engine.Resume()
		}
	case protocol.ActionHangup:
		c, err = s.calls.Hangup(callID)
		if err == nil && lc != nil {
			lc.engine.Hangup(ctx)
		}
	case protocol.ActionRestart:
		c, err = s.restart(ctx, callID, lc)
	default:
		return nil, errors.New("unknown control action")
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CallEvents.WithLabelValues(action).Inc()
		s.metrics.ActiveCalls.Set(float64(s.calls.ActiveCount()))
	}
	if lc != nil {
		lc.pump.SendState(string(c.State), action)
	}
	return c, nil
}

// restart puts the call back at ringing with fresh counters and a fresh
// callback number. Any live engine is torn down and rebuilt so the next
// answer starts a clean pipeline.
func (s *Server) restart(ctx context.Context, callID string, lc *liveCall) (*call.Call, error) {
	old, err := s.calls.Get(callID)
	if err != nil {
		return nil, err
	}
	identity := persona.NewIdentity(old.Address)
	c, err := s.calls.Restart(callID, identity.CallbackNumber)
	if err != nil {
		return nil, err
	}
	if err := s.transcripts.DeleteCall(ctx, callID); err != nil {
		return nil, err
	}

	if lc != nil {
		lc.engine.Hangup(ctx)
		engine, err := s.buildEngine(c, lc.pump)
		if err != nil {
			return nil, err
		}
		lc.engine = engine
	}
	return c, nil
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.calls.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	turns, err := s.transcripts.Transcript(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_store", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"call_id": id,
		"turns":   turns,
	})
}

func (s *Server) liveFor(callID string) *liveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[callID]
}

func (s *Server) recordTurn(callID string) func(role, text string) {
	return func(role, text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.transcripts.SaveTurn(ctx, history.TurnRecord{CallID: callID, Role: role, Content: text})
	}
}
