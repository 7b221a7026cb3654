package pion

import (
	"github.com/pion/sdp/v3"
)

// sendingSections counts the audio and video sections of a remote
// description that carry media towards us.
func sendingSections(raw string) (int, error) {
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(raw); err != nil {
		return 0, err
	}

	n := 0
	for _, m := range desc.MediaDescriptions {
		switch m.MediaName.Media {
		case "audio", "video":
		default:
			continue
		}
		if m.MediaName.Port.Value == 0 {
			continue
		}
		if _, ok := m.Attribute("recvonly"); ok {
			continue
		}
		if _, ok := m.Attribute("inactive"); ok {
			continue
		}
		n++
	}
	return n, nil
}
