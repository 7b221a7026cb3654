package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	CallService *service.CallService
	ChatService *service.ChatService
	Hub         *service.UpdateHub
	// Metrics is served on /metrics when set.
	Metrics     http.Handler
}

func NewHandler(callService *service.CallService, chatService *service.ChatService, hub *service.UpdateHub) *Handler {
	return &Handler{
		CallService: callService,
		ChatService: chatService,
		Hub:         hub,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWS)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/call", func(r chi.Router) {
			r.Get("/", h.GetCall)
			r.Post("/start", h.StartCall)
			r.Post("/accept", h.AcceptCall)
			r.Post("/reject", h.RejectCall)
			r.Post("/end", h.EndCall)
			r.Post("/video", h.ToggleVideo)
			r.Post("/audio", h.ToggleAudio)
		})
		r.Get("/keys/self", h.GetSelfKey)
		r.Put("/keys/{userId}", h.PutKey)
		r.Post("/messages/seal", h.SealMessage)
		r.Post("/messages/open", h.OpenMessage)
	})

	return r
}

type errorDTO struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorDTO{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCallInProgress), errors.Is(err, domain.ErrNoPendingCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMediaAccess):
		return http.StatusFailedDependency
	case errors.Is(err, domain.ErrSignalingDelivery):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrInvalidPeer), errors.Is(err, domain.ErrInvalidKey), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEncryptionDisabled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDecrypt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
