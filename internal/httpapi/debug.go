package httpapi

import (
	"net/http"

	"github.com/mkaran/dispatchsim/internal/audio"
)

func (s *Server) handleDebugLatency(w http.ResponseWriter, _ *http.Request) {
	if s.stages == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.stages.Snapshot())
}

// handleDebugCapture returns the last few seconds of inbound dispatcher audio
// as a WAV file, for checking what the transcription stream actually heard.
func (s *Server) handleDebugCapture(w http.ResponseWriter, _ *http.Request) {
	pcm, sampleRate := s.capture.Snapshot()
	if len(pcm) == 0 {
		respondError(w, http.StatusNotFound, "no_capture", "no audio captured yet")
		return
	}
	wav, err := audio.EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_wav", err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
