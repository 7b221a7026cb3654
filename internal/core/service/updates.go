package service

import (
	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/rs/zerolog/log"
)

// UpdateHub fans call updates out to connected observers. A new observer
// gets the current snapshot first.
type UpdateHub struct {
	calls      *CallService
	observers  map[port.Observer]bool
	register   chan port.Observer
	unregister chan port.Observer
	quit       chan struct{}
}

func NewUpdateHub(calls *CallService) *UpdateHub {
	return &UpdateHub{
		calls:      calls,
		observers:  make(map[port.Observer]bool),
		register:   make(chan port.Observer),
		unregister: make(chan port.Observer),
		quit:       make(chan struct{}),
	}
}

func (h *UpdateHub) Join(o port.Observer) {
	select {
	case h.register <- o:
	case <-h.quit:
		o.Close()
	}
}

func (h *UpdateHub) Leave(o port.Observer) {
	select {
	case h.unregister <- o:
	case <-h.quit:
	}
}

func (h *UpdateHub) Stop() {
	close(h.quit)
}

func (h *UpdateHub) Run() {
	updates, cancel := h.calls.Subscribe()
	defer cancel()

	for {
		select {
		case <-h.quit:
			log.Info().Msg("Stopping UpdateHub. Disconnecting all observers.")
			for o := range h.observers {
				if err := o.Close(); err != nil {
					log.Error().Err(err).Str("observer_id", o.ID()).Msg("Error closing observer")
				}
				delete(h.observers, o)
			}
			return

		case o := <-h.register:
			h.observers[o] = true
			log.Info().Int("count", len(h.observers)).Str("observer_id", o.ID()).Msg("Observer joined")
			h.send(o, h.calls.Snapshot())

		case o := <-h.unregister:
			if _, ok := h.observers[o]; ok {
				delete(h.observers, o)
				log.Info().Int("count", len(h.observers)).Str("observer_id", o.ID()).Msg("Observer left")
			}

		case u, ok := <-updates:
			if !ok {
				// call service is gone, nothing more will come
				updates = nil
				continue
			}
			for o := range h.observers {
				h.send(o, u)
			}
		}
	}
}

func (h *UpdateHub) send(o port.Observer, u domain.CallUpdate) {
	if err := o.SendUpdate(u); err != nil {
		log.Error().Err(err).Str("observer_id", o.ID()).Msg("Error sending update")
		o.Close()
		delete(h.observers, o)
	}
}
