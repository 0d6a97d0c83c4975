package api

import (
	"errors"
	"net/http"

	"github.com/vocata-ai/vocata/internal/voice"
	"github.com/vocata-ai/vocata/pkg/audio"
)

// liveState is the JSON body returned by the live session endpoints.
type liveState struct {
	State  string `json:"state"`
	Active bool   `json:"active"`
}

func (s *Server) currentLiveState() liveState {
	st := s.live.State()
	return liveState{
		State:  st.String(),
		Active: st == voice.StateActive,
	}
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	err := s.live.Start(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.currentLiveState())
	case errors.Is(err, voice.ErrNoTransport):
		writeError(w, http.StatusServiceUnavailable, "no live provider configured")
	case errors.Is(err, audio.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "microphone access denied")
	default:
		writeError(w, http.StatusBadGateway, "start session: "+err.Error())
	}
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	if err := s.live.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, "stop session: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.currentLiveState())
}

func (s *Server) handleLiveState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentLiveState())
}
