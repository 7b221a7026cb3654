package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Frame is one message seen by the switchboard.
type Frame struct {
	From  domain.UserID
	Event string
	Data  json.RawMessage
}

// Switchboard relays call intents between in-process transports the way
// the signaling server does: initiate becomes incoming, answer becomes
// accepted, reject becomes rejected and end becomes ended.
type Switchboard struct {
	mu      sync.Mutex
	clients map[domain.UserID]*Transport
	frames  []Frame
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{
		clients: make(map[domain.UserID]*Transport),
	}
}

// Connect returns a connected transport for user, replacing any earlier one.
func (sb *Switchboard) Connect(user domain.UserID) *Transport {
	t := &Transport{
		sb:        sb,
		user:      user,
		connected: true,
		handlers:  make(map[string]func(json.RawMessage)),
	}
	sb.mu.Lock()
	sb.clients[user] = t
	sb.mu.Unlock()
	return t
}

// Emitted returns every frame emitted by user, in order.
func (sb *Switchboard) Emitted(user domain.UserID) []Frame {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	var out []Frame
	for _, f := range sb.frames {
		if f.From == user {
			out = append(out, f)
		}
	}
	return out
}

// Count returns how many times event was emitted by anyone.
func (sb *Switchboard) Count(event string) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	n := 0
	for _, f := range sb.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

type relayed struct {
	To         domain.UserID  `json:"to"`
	From       domain.UserID  `json:"from"`
	Signal     *domain.Signal `json:"signal"`
	CallerName string         `json:"callerName"`
}

func (sb *Switchboard) route(from domain.UserID, event string, data json.RawMessage) {
	sb.mu.Lock()
	sb.frames = append(sb.frames, Frame{From: from, Event: event, Data: data})
	sb.mu.Unlock()

	var msg relayed
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Switchboard dropped malformed frame")
		return
	}

	sb.mu.Lock()
	target, ok := sb.clients[msg.To]
	sb.mu.Unlock()
	if !ok {
		log.Debug().Str("peer_id", msg.To.String()).Msg("Switchboard target offline")
		return
	}

	switch event {
	case domain.EventInitiate:
		var sig domain.Signal
		if msg.Signal != nil {
			sig = *msg.Signal
		}
		target.Inject(domain.EventIncoming, domain.IncomingPayload{From: from, Signal: sig, CallerName: msg.CallerName})
	case domain.EventAnswer:
		var sig domain.Signal
		if msg.Signal != nil {
			sig = *msg.Signal
		}
		target.Inject(domain.EventAccepted, domain.AcceptedPayload{Signal: sig})
	case domain.EventReject:
		target.Inject(domain.EventRejected, struct{}{})
	case domain.EventEnd:
		target.Inject(domain.EventEnded, struct{}{})
	}
}

// Transport is an in-process port.SignalingTransport attached to a
// Switchboard.
type Transport struct {
	sb   *Switchboard
	user domain.UserID

	mu        sync.Mutex
	connected bool
	stall     chan struct{}
	handlers  map[string]func(json.RawMessage)
}

func (t *Transport) Emit(ctx context.Context, event string, payload any) error {
	if !t.Connected() {
		return domain.ErrSignalingDelivery
	}
	t.mu.Lock()
	stall := t.stall
	t.mu.Unlock()
	if stall != nil {
		select {
		case <-stall:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrSignalingDelivery, ctx.Err())
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.sb.route(t.user, event, data)
	return nil
}

func (t *Transport) On(event string, handler func(json.RawMessage)) {
	t.mu.Lock()
	t.handlers[event] = handler
	t.mu.Unlock()
}

func (t *Transport) Off(event string) {
	t.mu.Lock()
	delete(t.handlers, event)
	t.mu.Unlock()
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// Stall holds every Emit until ch is closed or the caller's context ends,
// like a socket whose peer stopped reading. A nil ch lifts the stall.
func (t *Transport) Stall(ch chan struct{}) {
	t.mu.Lock()
	t.stall = ch
	t.mu.Unlock()
}

// Inject delivers event to this transport as if the server had sent it.
func (t *Transport) Inject(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	t.mu.Lock()
	h := t.handlers[event]
	t.mu.Unlock()
	if h != nil {
		h(data)
	}
}
