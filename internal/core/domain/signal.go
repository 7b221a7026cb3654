package domain

import "errors"

type SignalType string

const (
	SignalOffer  SignalType = "offer"
	SignalAnswer SignalType = "answer"
)

// Signal is a complete session description. ICE candidates are gathered
// before it is produced, so one Signal per direction is all a call needs.
type Signal struct {
	Type SignalType `json:"type"`
	SDP  string     `json:"sdp"`
}

func NewSignal(t SignalType, sdp string) Signal {
	return Signal{
		Type: t,
		SDP:  sdp,
	}
}

func (s Signal) Validate(want SignalType) error {
	if s.Type != want {
		return errors.New("unexpected signal type " + string(s.Type) + ", want " + string(want))
	}
	if s.SDP == "" {
		return errors.New("signal has empty sdp")
	}
	return nil
}

// Outbound intents.
const (
	EventInitiate = "call:initiate"
	EventAnswer   = "call:answer"
	EventReject   = "call:reject"
	EventEnd      = "call:end"
)

// Inbound events, as relayed by the server.
const (
	EventIncoming = "call:incoming"
	EventAccepted = "call:accepted"
	EventRejected = "call:rejected"
	EventEnded    = "call:ended"
)

// Presence events share the socket but are not ours.
const (
	EventOnlineUsers       = "getOnlineUsers"
	EventDisconnectedUsers = "getDisconnectedUsers"
)

// Outbound is one message for the signaling server. Event picks the intent,
// the remaining fields are the wire payload.
type Outbound struct {
	Event      string  `json:"-"`
	To         UserID  `json:"to"`
	From       UserID  `json:"from,omitempty"`
	Signal     *Signal `json:"signal,omitempty"`
	CallerName string  `json:"callerName,omitempty"`
}

type IncomingPayload struct {
	From       UserID `json:"from"`
	Signal     Signal `json:"signal"`
	CallerName string `json:"callerName"`
}

type AcceptedPayload struct {
	Signal Signal `json:"signal"`
}
