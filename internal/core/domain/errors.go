package domain

import "errors"

var (
	ErrMediaAccess       = errors.New("failed to access camera/microphone")
	ErrSignalingDelivery = errors.New("signaling transport not connected")
	ErrPeerNegotiation   = errors.New("peer negotiation failed")

	ErrCallInProgress = errors.New("a call is already in progress")
	ErrNoPendingCall  = errors.New("no incoming call to answer")
	ErrStaleEvent     = errors.New("event does not apply to the current call")

	ErrDecrypt    = errors.New("unable to decrypt message")
	ErrInvalidKey = errors.New("invalid public key")
	ErrUnknownKey = errors.New("no public key known for user")
)

var ErrMalformedSignal = errors.New("malformed session description")
