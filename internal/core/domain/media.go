package domain

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

type MediaConstraints struct {
	Video bool `json:"video" yaml:"video"`
	Audio bool `json:"audio" yaml:"audio"`
}

func DefaultConstraints() MediaConstraints {
	return MediaConstraints{Video: true, Audio: true}
}

// TrackInfo describes a track without handing out the track itself.
type TrackInfo struct {
	ID       string    `json:"id"`
	StreamID string    `json:"stream_id,omitempty"`
	Kind     TrackKind `json:"kind"`
	Enabled  bool      `json:"enabled"`
}
