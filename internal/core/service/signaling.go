package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/rs/zerolog/log"
)

// SignalingBridge turns call intents into transport messages and transport
// events back into call events.
type SignalingBridge struct {
	transport port.SignalingTransport
	self      domain.UserID
	selfName  string

	mu    sync.Mutex
	bound bool
}

func NewSignalingBridge(transport port.SignalingTransport, self domain.UserID, selfName string) *SignalingBridge {
	return &SignalingBridge{
		transport: transport,
		self:      self,
		selfName:  selfName,
	}
}

func (b *SignalingBridge) Self() domain.UserID {
	return b.self
}

func (b *SignalingBridge) Send(ctx context.Context, msg domain.Outbound) error {
	msg.From = b.self
	if msg.Event == domain.EventInitiate {
		msg.CallerName = b.selfName
	}
	if err := b.transport.Emit(ctx, msg.Event, msg); err != nil {
		return fmt.Errorf("emit %s to %s: %w", msg.Event, msg.To, err)
	}
	log.Debug().Str("event", msg.Event).Str("peer_id", msg.To.String()).Msg("Signal sent")
	return nil
}

// Bind routes the four inbound call events to deliver. Binding again
// replaces the previous routes, it never adds a second one.
func (b *SignalingBridge) Bind(deliver func(domain.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transport.On(domain.EventIncoming, func(data json.RawMessage) {
		var p domain.IncomingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("event", domain.EventIncoming).Msg("Invalid signal payload")
			return
		}
		log.Info().Str("peer_id", p.From.String()).Str("caller", p.CallerName).Msg("Incoming call")
		deliver(domain.Incoming{
			ID:         domain.NewCallID(),
			From:       p.From,
			CallerName: p.CallerName,
			Signal:     p.Signal,
		})
	})

	b.transport.On(domain.EventAccepted, func(data json.RawMessage) {
		var p domain.AcceptedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("event", domain.EventAccepted).Msg("Invalid signal payload")
			return
		}
		deliver(domain.RemoteAccepted{Signal: p.Signal})
	})

	b.transport.On(domain.EventRejected, func(json.RawMessage) {
		deliver(domain.RemoteRejected{})
	})

	b.transport.On(domain.EventEnded, func(json.RawMessage) {
		deliver(domain.RemoteEnded{})
	})

	b.bound = true
}

func (b *SignalingBridge) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bound {
		return
	}
	for _, ev := range []string{domain.EventIncoming, domain.EventAccepted, domain.EventRejected, domain.EventEnded} {
		b.transport.Off(ev)
	}
	b.bound = false
}
