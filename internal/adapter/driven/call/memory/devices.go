package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
)

var streamSeq atomic.Uint64

// Devices hands out fake camera/microphone streams.
type Devices struct {
	mu sync.Mutex
	// Err, when set, fails every GetUserMedia.
	Err error
	// Gate, when set, holds GetUserMedia until it receives or is closed,
	// standing in for a permission prompt.
	Gate    chan struct{}
	streams []*Stream
}

func NewDevices() *Devices {
	return &Devices{}
}

func (d *Devices) GetUserMedia(ctx context.Context, c domain.MediaConstraints) (port.LocalStream, error) {
	d.mu.Lock()
	gate, failure := d.Gate, d.Err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	if !c.Video && !c.Audio {
		return nil, fmt.Errorf("%w: no media requested", domain.ErrMediaAccess)
	}

	n := streamSeq.Add(1)
	s := &Stream{id: fmt.Sprintf("stream-%d", n)}
	if c.Video {
		s.tracks = append(s.tracks, &Track{id: fmt.Sprintf("video-%d", n), kind: domain.TrackVideo, enabled: true})
	}
	if c.Audio {
		s.tracks = append(s.tracks, &Track{id: fmt.Sprintf("audio-%d", n), kind: domain.TrackAudio, enabled: true})
	}

	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Opened returns every stream handed out so far.
func (d *Devices) Opened() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Live counts streams with at least one unstopped track.
func (d *Devices) Live() int {
	n := 0
	for _, s := range d.Opened() {
		if !s.Stopped() {
			n++
		}
	}
	return n
}

type Stream struct {
	id     string
	tracks []*Track
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

func (s *Stream) Stopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

type Track struct {
	id   string
	kind domain.TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func (t *Track) ID() string {
	return t.id
}

func (t *Track) Kind() domain.TrackKind {
	return t.kind
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
