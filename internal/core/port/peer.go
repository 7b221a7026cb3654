package port

import (
	"context"

	"github.com/Wyydra/ya-client/internal/core/domain"
)

// PeerHandlers are fixed when a session is built. Either may be called from
// any goroutine.
type PeerHandlers struct {
	// OnRemoteStream fires once, when every remote track has arrived.
	OnRemoteStream func(stream RemoteStream)
	// OnClose fires once, on ICE failure or when the connection closes.
	OnClose func(err error)
}

type PeerFactory interface {
	// NewCaller builds an initiating session and returns it with the
	// complete local offer.
	NewCaller(ctx context.Context, local LocalStream, h PeerHandlers) (PeerSession, domain.Signal, error)
	// NewReceiver applies offer and returns the session with the complete
	// local answer.
	NewReceiver(ctx context.Context, offer domain.Signal, local LocalStream, h PeerHandlers) (PeerSession, domain.Signal, error)
}

type PeerSession interface {
	ApplyAnswer(answer domain.Signal) error
	RemoteStream() RemoteStream
	// Destroy is safe to call more than once.
	Destroy()
}
