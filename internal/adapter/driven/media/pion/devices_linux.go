//go:build linux

package pion

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Devices opens the camera (V4L2) and microphone (malgo) and encodes them
// as VP8 and Opus.
type Devices struct {
	codecs *mediadevices.CodecSelector
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &Devices{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	d.codecs.Populate(m)
	return nil
}

type attempt struct {
	video bool
	audio bool
}

func (a attempt) String() string {
	switch {
	case a.video && a.audio:
		return "video+audio"
	case a.video:
		return "video-only"
	default:
		return "audio-only"
	}
}

// GetUserMedia opens what c asks for. When both kinds are requested and the
// pair cannot be opened, video alone and then audio alone are tried.
func (d *Devices) GetUserMedia(ctx context.Context, c domain.MediaConstraints) (port.LocalStream, error) {
	var attempts []attempt
	switch {
	case c.Video && c.Audio:
		attempts = []attempt{{true, true}, {true, false}, {false, true}}
	case c.Video || c.Audio:
		attempts = []attempt{{c.Video, c.Audio}}
	default:
		return nil, fmt.Errorf("%w: no media requested", domain.ErrMediaAccess)
	}

	var errs []error
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stream, err := d.open(ctx, a)
		if err == nil {
			log.Info().Str("mode", a.String()).Int("tracks", len(stream.tracks)).Msg("Local media captured")
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("mode", a.String()).Msg("GetUserMedia failed")
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrMediaAccess, errors.Join(errs...))
}

// open runs the blocking device open off the caller's goroutine so ctx can
// abandon it. A stream that arrives after ctx is done is closed.
func (d *Devices) open(ctx context.Context, a attempt) (*Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: d.codecs}
	if a.video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	}
	if a.audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := mediadevices.GetUserMedia(constraints)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return fromMediaStream(r.stream), nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				for _, t := range r.stream.GetTracks() {
					t.Close()
				}
			}
		}()
		return nil, ctx.Err()
	}
}

func fromMediaStream(ms mediadevices.MediaStream) *Stream {
	var tracks []*Track
	for _, t := range ms.GetTracks() {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("track_id", t.ID()).Msg("Local track ended")
			}
		})
		tracks = append(tracks, newTrack(t, t.Close))
	}
	return newStream(tracks...)
}
