package domain

import (
	"fmt"
)

type CallState int

const (
	StateIdle CallState = iota
	StateCalling
	StateRinging
	StateConnected
	// StateEnded is only held while teardown effects run. The loop moves it
	// to StateIdle before handling the next event.
	StateEnded
)

var callStateNames = [...]string{
	StateIdle:      "idle",
	StateCalling:   "calling",
	StateRinging:   "ringing",
	StateConnected: "connected",
	StateEnded:     "ended",
}

func (s CallState) String() string {
	if s < 0 || int(s) >= len(callStateNames) {
		return fmt.Sprintf("CallState(%d)", int(s))
	}
	return callStateNames[s]
}

func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CallState) UnmarshalText(b []byte) error {
	for i, name := range callStateNames {
		if name == string(b) {
			*s = CallState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown call state %q", b)
}

// Call is the single call a client may have. The zero value is the idle call.
type Call struct {
	ID              CallID
	State           CallState
	PeerUserID      UserID
	PeerDisplayName string
	IsIncoming      bool
	// PendingSignal holds the caller's offer while ringing.
	PendingSignal *Signal
	// SessionReady is set once the local description went out.
	SessionReady bool
}

func (c Call) Active() bool {
	return c.State != StateIdle
}

type Role int

const (
	RoleCaller Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleReceiver {
		return "receiver"
	}
	return "caller"
}

type EndReason string

const (
	ReasonHangup            EndReason = "hangup"
	ReasonDeclined          EndReason = "declined"
	ReasonRemoteRejected    EndReason = "remote_rejected"
	ReasonRemoteEnded       EndReason = "remote_ended"
	ReasonMediaFailed       EndReason = "media_failed"
	ReasonNegotiationFailed EndReason = "negotiation_failed"
	ReasonPeerClosed        EndReason = "peer_closed"
	ReasonTimeout           EndReason = "timeout"
	ReasonSignalingFailed   EndReason = "signaling_failed"
)

// Event is anything that can move a Call. Local actions, relayed signaling
// and completions of async work all arrive as events.
type Event interface {
	isEvent()
}

type StartCall struct {
	ID       CallID
	Peer     UserID
	PeerName string
}

type Incoming struct {
	ID         CallID
	From       UserID
	CallerName string
	Signal     Signal
}

type Accept struct{}

type Reject struct{}

type End struct{}

type RemoteAccepted struct {
	Signal Signal
}

type RemoteRejected struct{}

type RemoteEnded struct{}

// SessionReady reports that the local description for call Call is ready.
type SessionReady struct {
	Call   CallID
	Signal Signal
}

type MediaFailed struct {
	Call CallID
	Err  error
}

type NegotiationFailed struct {
	Call CallID
	Err  error
}

type PeerClosed struct {
	Call CallID
	Err  error
}

// DeliveryFailed reports that our offer or answer never reached the
// server.
type DeliveryFailed struct {
	Call CallID
	Err  error
}

type RingTimeout struct {
	Call CallID
}

type TeardownDone struct {
	Call CallID
}

func (StartCall) isEvent()         {}
func (Incoming) isEvent()          {}
func (Accept) isEvent()            {}
func (Reject) isEvent()            {}
func (End) isEvent()               {}
func (RemoteAccepted) isEvent()    {}
func (RemoteRejected) isEvent()    {}
func (RemoteEnded) isEvent()       {}
func (SessionReady) isEvent()      {}
func (MediaFailed) isEvent()       {}
func (NegotiationFailed) isEvent() {}
func (PeerClosed) isEvent()        {}
func (DeliveryFailed) isEvent()    {}
func (RingTimeout) isEvent()       {}
func (TeardownDone) isEvent()      {}

// Effect is work the caller of Transition must carry out, in order.
type Effect interface {
	isEffect()
}

// OpenSession acquires local media and builds the peer connection. The
// outcome comes back as SessionReady, MediaFailed or NegotiationFailed.
type OpenSession struct {
	Role        Role
	RemoteOffer *Signal
}

type ApplyAnswer struct {
	Signal Signal
}

type Emit struct {
	Message Outbound
}

type ArmRingTimer struct{}

type DisarmRingTimer struct{}

// Teardown releases media and the peer session and resets toggles.
type Teardown struct {
	Reason EndReason
}

// Notify surfaces an error to the user.
type Notify struct {
	Err error
}

func (OpenSession) isEffect()     {}
func (ApplyAnswer) isEffect()     {}
func (Emit) isEffect()            {}
func (ArmRingTimer) isEffect()    {}
func (DisarmRingTimer) isEffect() {}
func (Teardown) isEffect()        {}
func (Notify) isEffect()          {}

// Transition computes the next Call and the effects for ev. It does not
// touch anything outside its arguments. A non-nil error means the event was
// refused and the returned Call equals c; effects may still be returned for
// refusals that answer the sender (a busy reject).
func Transition(c Call, ev Event) (Call, []Effect, error) {
	switch e := ev.(type) {
	case StartCall:
		if c.State != StateIdle {
			return c, nil, ErrCallInProgress
		}
		next := Call{
			ID:              e.ID,
			State:           StateCalling,
			PeerUserID:      e.Peer,
			PeerDisplayName: e.PeerName,
		}
		return next, []Effect{OpenSession{Role: RoleCaller}, ArmRingTimer{}}, nil

	case Incoming:
		if err := e.Signal.Validate(SignalOffer); err != nil {
			return c, nil, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		if c.State != StateIdle {
			if e.From == c.PeerUserID {
				return c, nil, ErrStaleEvent
			}
			busy := Emit{Message: Outbound{Event: EventReject, To: e.From}}
			return c, []Effect{busy}, ErrCallInProgress
		}
		sig := e.Signal
		next := Call{
			ID:              e.ID,
			State:           StateRinging,
			PeerUserID:      e.From,
			PeerDisplayName: e.CallerName,
			IsIncoming:      true,
			PendingSignal:   &sig,
		}
		return next, []Effect{ArmRingTimer{}}, nil

	case Accept:
		if c.State != StateRinging || c.PendingSignal == nil {
			return c, nil, ErrNoPendingCall
		}
		offer := *c.PendingSignal
		next := c
		next.State = StateConnected
		next.PendingSignal = nil
		return next, []Effect{DisarmRingTimer{}, OpenSession{Role: RoleReceiver, RemoteOffer: &offer}}, nil

	case Reject:
		if c.State != StateRinging {
			return c, nil, ErrNoPendingCall
		}
		return ending(c, ReasonDeclined, emitTo(EventReject, c.PeerUserID))

	case End:
		switch c.State {
		case StateCalling, StateRinging, StateConnected:
			var effects []Effect
			if c.PeerUserID != "" {
				effects = append(effects, emitTo(EventEnd, c.PeerUserID))
			}
			return ending(c, ReasonHangup, effects...)
		}
		return c, nil, ErrStaleEvent

	case RemoteAccepted:
		if c.State != StateCalling || !c.SessionReady {
			return c, nil, ErrStaleEvent
		}
		if err := e.Signal.Validate(SignalAnswer); err != nil {
			return c, nil, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		next := c
		next.State = StateConnected
		return next, []Effect{DisarmRingTimer{}, ApplyAnswer{Signal: e.Signal}}, nil

	case RemoteRejected:
		if c.State != StateCalling {
			return c, nil, ErrStaleEvent
		}
		return ending(c, ReasonRemoteRejected)

	case RemoteEnded:
		switch c.State {
		case StateCalling, StateRinging, StateConnected:
			return ending(c, ReasonRemoteEnded)
		}
		return c, nil, ErrStaleEvent

	case SessionReady:
		if !c.owns(e.Call) || c.SessionReady {
			return c, nil, ErrStaleEvent
		}
		var out Effect
		switch {
		case c.State == StateCalling && !c.IsIncoming:
			out = Emit{Message: Outbound{Event: EventInitiate, To: c.PeerUserID, Signal: &e.Signal}}
		case c.State == StateConnected && c.IsIncoming:
			out = Emit{Message: Outbound{Event: EventAnswer, To: c.PeerUserID, Signal: &e.Signal}}
		default:
			return c, nil, ErrStaleEvent
		}
		next := c
		next.SessionReady = true
		return next, []Effect{out}, nil

	case MediaFailed:
		return c.openFailed(e.Call, ReasonMediaFailed, e.Err)

	case NegotiationFailed:
		return c.openFailed(e.Call, ReasonNegotiationFailed, e.Err)

	case PeerClosed:
		if !c.owns(e.Call) {
			return c, nil, ErrStaleEvent
		}
		switch c.State {
		case StateCalling, StateConnected:
			return ending(c, ReasonPeerClosed)
		}
		return c, nil, ErrStaleEvent

	case DeliveryFailed:
		if !c.owns(e.Call) {
			return c, nil, ErrStaleEvent
		}
		switch c.State {
		case StateCalling, StateConnected:
			return ending(c, ReasonSignalingFailed, Notify{Err: e.Err})
		}
		return c, nil, ErrStaleEvent

	case RingTimeout:
		if !c.owns(e.Call) {
			return c, nil, ErrStaleEvent
		}
		switch c.State {
		case StateCalling:
			return ending(c, ReasonTimeout, emitTo(EventEnd, c.PeerUserID))
		case StateRinging:
			return ending(c, ReasonTimeout, emitTo(EventReject, c.PeerUserID))
		}
		return c, nil, ErrStaleEvent

	case TeardownDone:
		if c.State != StateEnded || !c.owns(e.Call) {
			return c, nil, ErrStaleEvent
		}
		return Call{}, nil, nil
	}

	return c, nil, fmt.Errorf("%w: unknown event %T", ErrStaleEvent, ev)
}

func (c Call) owns(id CallID) bool {
	return c.State != StateIdle && c.ID == id
}

// openFailed handles a failed OpenSession. A receiver that never answered
// still owes the caller a reject.
func (c Call) openFailed(id CallID, reason EndReason, err error) (Call, []Effect, error) {
	if !c.owns(id) || c.SessionReady {
		return c, nil, ErrStaleEvent
	}
	switch c.State {
	case StateCalling:
		return ending(c, reason, Notify{Err: err})
	case StateConnected:
		if c.IsIncoming {
			return ending(c, reason, Notify{Err: err}, emitTo(EventReject, c.PeerUserID))
		}
	}
	return c, nil, ErrStaleEvent
}

func ending(c Call, reason EndReason, before ...Effect) (Call, []Effect, error) {
	next := c
	next.State = StateEnded
	next.PendingSignal = nil
	effects := append(before, DisarmRingTimer{}, Teardown{Reason: reason})
	return next, effects, nil
}

func emitTo(event string, to UserID) Effect {
	return Emit{Message: Outbound{Event: event, To: to}}
}
