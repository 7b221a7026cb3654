package http

import (
	"net/http"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

type publicKeyDTO struct {
	PublicKey         string `json:"publicKey"`
	EncryptionEnabled bool   `json:"encryptionEnabled"`
}

type sealDTO struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type openDTO struct {
	From       string `json:"from"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

type contentDTO struct {
	Content string `json:"content"`
}

func (h *Handler) GetSelfKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, publicKeyDTO{
		PublicKey:         h.ChatService.PublicKey(),
		EncryptionEnabled: true,
	})
}

func (h *Handler) PutKey(w http.ResponseWriter, r *http.Request) {
	var req publicKeyDTO
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := domain.UserID(chi.URLParam(r, "userId"))
	if err := h.ChatService.RememberKey(userID, req.PublicKey, req.EncryptionEnabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SealMessage(w http.ResponseWriter, r *http.Request) {
	var req sealDTO
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sealed, err := h.ChatService.Seal(domain.UserID(req.To), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sealed)
}

func (h *Handler) OpenMessage(w http.ResponseWriter, r *http.Request) {
	var req openDTO
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg := domain.SealedMessage{Ciphertext: req.Ciphertext, Nonce: req.Nonce}
	content, err := h.ChatService.Open(domain.UserID(req.From), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentDTO{Content: content})
}
