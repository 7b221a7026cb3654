package port

import (
	"context"

	"github.com/Wyydra/ya-client/internal/core/domain"
)

// MediaDevices is the only way into the camera and microphone.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints domain.MediaConstraints) (LocalStream, error)
}

type LocalStream interface {
	ID() string
	Tracks() []LocalTrack
}

type LocalTrack interface {
	ID() string
	Kind() domain.TrackKind
	Enabled() bool
	// SetEnabled mutes or unmutes the track without removing it.
	SetEnabled(enabled bool)
	Stop()
}

type RemoteStream interface {
	Tracks() []domain.TrackInfo
}
