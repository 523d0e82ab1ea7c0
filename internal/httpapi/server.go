package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mkaran/dispatchsim/internal/audio"
	"github.com/mkaran/dispatchsim/internal/call"
	"github.com/mkaran/dispatchsim/internal/config"
	"github.com/mkaran/dispatchsim/internal/history"
	"github.com/mkaran/dispatchsim/internal/observability"
	"github.com/mkaran/dispatchsim/internal/persona"
	"github.com/mkaran/dispatchsim/internal/protocol"
	"github.com/mkaran/dispatchsim/internal/scenario"
	"github.com/mkaran/dispatchsim/internal/speech"
	"github.com/mkaran/dispatchsim/internal/transcribe"
)

// Providers bundles the external services a live call needs. main wires real
// or mock implementations depending on configured API keys.
type Providers struct {
	STT         transcribe.Provider
	Generator   persona.Generator
	Synthesizer speech.Synthesizer
}

type Server struct {
	cfg         config.Config
	calls       *call.Manager
	scenarios   scenario.Store
	transcripts history.Store
	providers   Providers
	metrics     *observability.Metrics
	stages      *observability.StageWindow
	capture     *audio.CaptureRing
	upgrader    websocket.Upgrader
	static      http.Handler

	mu   sync.Mutex
	live map[string]*liveCall
}

func New(cfg config.Config, calls *call.Manager, scenarios scenario.Store, transcripts history.Store, providers Providers, metrics *observability.Metrics, stages *observability.StageWindow) *Server {
	return &Server{
		cfg:         cfg,
		calls:       calls,
		scenarios:   scenarios,
		transcripts: transcripts,
		providers:   providers,
		metrics:     metrics,
		stages:      stages,
		capture:     audio.NewCaptureRing(cfg.DebugCaptureSeconds, 16000),
		static:      newStaticHandler(),
		live:        make(map[string]*liveCall),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so another site cannot drive a trainee's mic
				// session if the trainer is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/call", s.handleCreateCall)
	r.Get("/v1/call/ws", s.handleCallWS)
	r.Get("/v1/call/{id}", s.handleGetCall)
	r.Post("/v1/call/{id}/answer", s.handleControl(protocol.ActionAnswer))
	r.Post("/v1/call/{id}/pause", s.handleControl(protocol.ActionPause))
	r.Post("/v1/call/{id}/resume", s.handleControl(protocol.ActionResume))
	r.Post("/v1/call/{id}/hangup", s.handleControl(protocol.ActionHangup))
	r.Post("/v1/call/{id}/restart", s.handleControl(protocol.ActionRestart))
	r.Get("/v1/call/{id}/transcript", s.handleTranscript)

	r.Get("/v1/presets", s.handleListPresets)
	r.Post("/v1/presets", s.handleCreatePreset)
	r.Get("/v1/presets/{id}", s.handleGetPreset)
	r.Put("/v1/presets/{id}", s.handleUpdatePreset)
	r.Delete("/v1/presets/{id}", s.handleDeletePreset)

	r.Get("/v1/debug/latency", s.handleDebugLatency)
	r.Get("/v1/debug/capture.wav", s.handleDebugCapture)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.calls.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
