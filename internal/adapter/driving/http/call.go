package http

import (
	"net/http"

	"github.com/Wyydra/ya-client/internal/core/domain"
)

type startCallDTO struct {
	PeerID   string `json:"peerId"`
	PeerName string `json:"peerName"`
}

type toggleDTO struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.CallService.Snapshot())
}

func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallDTO
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.CallService.StartCall(r.Context(), domain.UserID(req.PeerID), req.PeerName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.CallService.Snapshot())
}

func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	if err := h.CallService.AcceptCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.CallService.Snapshot())
}

func (h *Handler) RejectCall(w http.ResponseWriter, r *http.Request) {
	if err := h.CallService.RejectCall(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.CallService.Snapshot())
}

// EndCall answers 200 even when the peer could not be told, because the
// local call is gone either way; the delivery error rides along.
func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	err := h.CallService.EndCall(r.Context())
	snap := h.CallService.Snapshot()
	if err != nil && snap.State != domain.StateIdle {
		writeError(w, err)
		return
	}
	if err != nil {
		snap.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ToggleVideo(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.CallService.ToggleVideo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleDTO{Enabled: enabled})
}

func (h *Handler) ToggleAudio(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.CallService.ToggleAudio(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleDTO{Enabled: enabled})
}
