package domain

// CallUpdate is what a UI gets to see after every change.
type CallUpdate struct {
	CallID          string      `json:"call_id,omitempty"`
	State           CallState   `json:"state"`
	PeerUserID      UserID      `json:"peer_id,omitempty"`
	PeerDisplayName string      `json:"peer_name,omitempty"`
	IsIncoming      bool        `json:"is_incoming"`
	VideoEnabled    bool        `json:"video_enabled"`
	AudioEnabled    bool        `json:"audio_enabled"`
	LocalTracks     []TrackInfo `json:"local_tracks,omitempty"`
	RemoteTracks    []TrackInfo `json:"remote_tracks,omitempty"`
	Reason          EndReason   `json:"reason,omitempty"`
	Error           string      `json:"error,omitempty"`
}
