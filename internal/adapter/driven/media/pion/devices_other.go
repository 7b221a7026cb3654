//go:build !linux

package pion

import (
	"context"
	"fmt"
	"runtime"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// Devices has no capture drivers off Linux. Sessions still negotiate
// receive-only.
type Devices struct{}

func NewDevices() (*Devices, error) {
	return &Devices{}, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (d *Devices) GetUserMedia(ctx context.Context, c domain.MediaConstraints) (port.LocalStream, error) {
	return nil, fmt.Errorf("%w: capture is not supported on %s", domain.ErrMediaAccess, runtime.GOOS)
}
