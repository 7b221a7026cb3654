package pion

import (
	"sync"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Stream struct {
	id     string
	tracks []*Track
}

func newStream(tracks ...*Track) *Stream {
	return &Stream{id: uuid.NewString(), tracks: tracks}
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Tracks() []port.LocalTrack {
	out := make([]port.LocalTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// Track is a local track that can be put on a peer connection. Muting swaps
// it out of every sender it is attached to, so no renegotiation is needed.
type Track struct {
	track webrtc.TrackLocal
	close func() error

	mu      sync.Mutex
	enabled bool
	stopped bool
	senders map[*webrtc.RTPSender]struct{}
}

// newTrack wraps track. release, when set, frees the source on Stop.
func newTrack(track webrtc.TrackLocal, release func() error) *Track {
	return &Track{
		track:   track,
		close:   release,
		enabled: true,
		senders: make(map[*webrtc.RTPSender]struct{}),
	}
}

func (t *Track) ID() string {
	return t.track.ID()
}

func (t *Track) Kind() domain.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled == enabled || t.stopped {
		return
	}
	t.enabled = enabled

	var next webrtc.TrackLocal
	if enabled {
		next = t.track
	}
	for sender := range t.senders {
		if err := sender.ReplaceTrack(next); err != nil {
			log.Warn().Err(err).Str("track_id", t.track.ID()).Bool("enabled", enabled).Msg("Failed to switch sender track")
		}
	}
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.close == nil {
		return
	}
	if err := t.close(); err != nil {
		log.Debug().Err(err).Str("track_id", t.track.ID()).Msg("Closing local track")
	}
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Track) local() webrtc.TrackLocal {
	return t.track
}

func (t *Track) attach(sender *webrtc.RTPSender) {
	t.mu.Lock()
	t.senders[sender] = struct{}{}
	t.mu.Unlock()
}

func (t *Track) detach(sender *webrtc.RTPSender) {
	t.mu.Lock()
	delete(t.senders, sender)
	t.mu.Unlock()
}
