package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Wyydra/ya-client/internal/adapter/driven/call/memory"
	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) deliver(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func TestBridgeSendStampsSender(t *testing.T) {
	sb := memory.NewSwitchboard()
	tr := sb.Connect("A")
	b := NewSignalingBridge(tr, "A", "Alice")

	sig := domain.NewSignal(domain.SignalOffer, "v=0")
	require.NoError(t, b.Send(context.Background(), domain.Outbound{Event: domain.EventInitiate, To: "B", Signal: &sig}))
	require.NoError(t, b.Send(context.Background(), domain.Outbound{Event: domain.EventEnd, To: "B"}))

	frames := sb.Emitted("A")
	require.Len(t, frames, 2)

	var initiate, end map[string]any
	require.NoError(t, json.Unmarshal(frames[0].Data, &initiate))
	require.NoError(t, json.Unmarshal(frames[1].Data, &end))
	assert.Equal(t, "A", initiate["from"])
	assert.Equal(t, "B", initiate["to"])
	assert.Equal(t, "Alice", initiate["callerName"])
	assert.NotNil(t, initiate["signal"])
	assert.Equal(t, "A", end["from"])
	assert.NotContains(t, end, "callerName")
	assert.NotContains(t, end, "signal")
}

func TestBridgeSendWhileDisconnected(t *testing.T) {
	tr := memory.NewSwitchboard().Connect("A")
	tr.SetConnected(false)
	b := NewSignalingBridge(tr, "A", "")

	err := b.Send(context.Background(), domain.Outbound{Event: domain.EventEnd, To: "B"})
	assert.ErrorIs(t, err, domain.ErrSignalingDelivery)
}

func TestBridgeDecodesInbound(t *testing.T) {
	tr := memory.NewSwitchboard().Connect("B")
	b := NewSignalingBridge(tr, "B", "")
	var r recorder
	b.Bind(r.deliver)

	offer := domain.NewSignal(domain.SignalOffer, "v=0 offer")
	answer := domain.NewSignal(domain.SignalAnswer, "v=0 answer")
	tr.Inject(domain.EventIncoming, domain.IncomingPayload{From: "A", Signal: offer, CallerName: "Alice"})
	tr.Inject(domain.EventAccepted, domain.AcceptedPayload{Signal: answer})
	tr.Inject(domain.EventRejected, struct{}{})
	tr.Inject(domain.EventEnded, struct{}{})

	events := r.all()
	require.Len(t, events, 4)

	in, ok := events[0].(domain.Incoming)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("A"), in.From)
	assert.Equal(t, "Alice", in.CallerName)
	assert.Equal(t, offer, in.Signal)
	assert.False(t, in.ID.IsZero())

	assert.Equal(t, domain.RemoteAccepted{Signal: answer}, events[1])
	assert.Equal(t, domain.RemoteRejected{}, events[2])
	assert.Equal(t, domain.RemoteEnded{}, events[3])
}

func TestBridgeBindIsIdempotent(t *testing.T) {
	tr := memory.NewSwitchboard().Connect("B")
	b := NewSignalingBridge(tr, "B", "")
	var first, second recorder

	b.Bind(first.deliver)
	b.Bind(second.deliver)
	tr.Inject(domain.EventEnded, struct{}{})

	assert.Empty(t, first.all())
	assert.Len(t, second.all(), 1)

	b.Unbind()
	b.Unbind()
	tr.Inject(domain.EventEnded, struct{}{})
	assert.Len(t, second.all(), 1)
}

func TestBridgeDropsMalformedPayload(t *testing.T) {
	tr := memory.NewSwitchboard().Connect("B")
	b := NewSignalingBridge(tr, "B", "")
	var r recorder
	b.Bind(r.deliver)

	tr.Inject(domain.EventIncoming, "not an object")
	tr.Inject(domain.EventAccepted, 42)

	assert.Empty(t, r.all())
}
