package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/rs/zerolog/log"
)

// MediaService owns the local stream. At most one stream is open; asking
// again while it is open returns the same stream.
type MediaService struct {
	devices port.MediaDevices

	// acquireMu serialises device opens; mu guards stream and is never held
	// across a device call, so Release does not wait on a permission prompt.
	acquireMu sync.Mutex
	mu        sync.Mutex
	stream    port.LocalStream
}

func NewMediaService(devices port.MediaDevices) *MediaService {
	return &MediaService{
		devices: devices,
	}
}

// Acquire returns the active stream or opens one. If ctx is cancelled while
// the device is opening, the new stream is stopped and ctx.Err() returned.
func (s *MediaService) Acquire(ctx context.Context, constraints domain.MediaConstraints) (port.LocalStream, error) {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.mu.Lock()
	if s.stream != nil {
		stream := s.stream
		s.mu.Unlock()
		return stream, nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := s.devices.GetUserMedia(ctx, constraints)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Msg("Error accessing media devices")
		if !errors.Is(err, domain.ErrMediaAccess) {
			err = fmt.Errorf("%w: %v", domain.ErrMediaAccess, err)
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		stopTracks(stream)
		return nil, err
	}
	s.stream = stream
	log.Debug().Str("stream_id", stream.ID()).Int("tracks", len(stream.Tracks())).Msg("Local stream acquired")
	return stream, nil
}

func (s *MediaService) ToggleVideo() bool {
	return s.toggle(domain.TrackVideo)
}

func (s *MediaService) ToggleAudio() bool {
	return s.toggle(domain.TrackAudio)
}

func (s *MediaService) toggle(kind domain.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return false
	}
	for _, t := range s.stream.Tracks() {
		if t.Kind() == kind {
			t.SetEnabled(!t.Enabled())
			return t.Enabled()
		}
	}
	return false
}

// Has reports whether the local stream carries a track of the given kind.
func (s *MediaService) Has(kind domain.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return false
	}
	for _, t := range s.stream.Tracks() {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

func (s *MediaService) Release() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		stopTracks(stream)
		log.Debug().Str("stream_id", stream.ID()).Msg("Local stream released")
	}
}

func (s *MediaService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

func (s *MediaService) Tracks() []domain.TrackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	tracks := s.stream.Tracks()
	out := make([]domain.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, domain.TrackInfo{
			ID:       t.ID(),
			StreamID: s.stream.ID(),
			Kind:     t.Kind(),
			Enabled:  t.Enabled(),
		})
	}
	return out
}

func stopTracks(stream port.LocalStream) {
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}
