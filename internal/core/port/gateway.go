package port

import (
	"context"
	"encoding/json"

	"github.com/Wyydra/ya-client/internal/core/domain"
)

// SignalingTransport is the socket to the signaling server.
type SignalingTransport interface {
	// Emit fails with domain.ErrSignalingDelivery while disconnected.
	Emit(ctx context.Context, event string, payload any) error
	// On sets the handler for event, replacing any earlier one.
	On(event string, handler func(data json.RawMessage))
	Off(event string)
	Connected() bool
}

// Observer receives call updates, typically a UI connection.
type Observer interface {
	ID() string
	SendUpdate(update domain.CallUpdate) error
	Close() error
}
