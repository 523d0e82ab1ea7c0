package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mkaran/dispatchsim/internal/scenario"
)

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	items, err := s.scenarios.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scenario_store", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"presets": items})
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scenarios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondPresetError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var sc scenario.Scenario
	if err := decodeJSON(r, &sc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if msg := validatePreset(sc); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_preset", msg)
		return
	}

	created, err := s.scenarios.Create(r.Context(), sc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scenario_store", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	var sc scenario.Scenario
	if err := decodeJSON(r, &sc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sc.ID = chi.URLParam(r, "id")
	if msg := validatePreset(sc); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_preset", msg)
		return
	}

	updated, err := s.scenarios.Update(r.Context(), sc)
	if err != nil {
		s.respondPresetError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.scenarios.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondPresetError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) respondPresetError(w http.ResponseWriter, err error) {
	if errors.Is(err, scenario.ErrNotFound) {
		respondError(w, http.StatusNotFound, "preset_not_found", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "scenario_store", err.Error())
}

func validatePreset(sc scenario.Scenario) string {
	switch {
	case strings.TrimSpace(sc.Name) == "":
		return "name is required"
	case strings.TrimSpace(sc.CallerName) == "":
		return "caller_name is required"
	case strings.TrimSpace(sc.Situation) == "":
		return "situation is required"
	case sc.Cooperation < 0 || sc.Cooperation > 100:
		return "cooperation must be between 0 and 100"
	default:
		return ""
	}
}
