package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObserver struct {
	id string

	mu      sync.Mutex
	updates []domain.CallUpdate
	fail    bool
	closed  bool
}

func (o *fakeObserver) ID() string {
	return o.id
}

func (o *fakeObserver) SendUpdate(u domain.CallUpdate) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("broken pipe")
	}
	o.updates = append(o.updates, u)
	return nil
}

func (o *fakeObserver) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

func (o *fakeObserver) states() []domain.CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.CallState
	for _, u := range o.updates {
		out = append(out, u.State)
	}
	return out
}

func (o *fakeObserver) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func TestHubSendsSnapshotThenUpdates(t *testing.T) {
	_, a, b := pair(t, CallConfig{})
	hub := NewUpdateHub(a.calls)
	go hub.Run()
	defer hub.Stop()

	o := &fakeObserver{id: "ui"}
	hub.Join(o)

	require.Eventually(t, func() bool { return len(o.states()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, domain.StateIdle, o.states()[0])

	require.NoError(t, a.calls.StartCall(context.Background(), b.id, ""))
	require.Eventually(t, func() bool {
		states := o.states()
		return states[len(states)-1] == domain.StateCalling
	}, waitFor, 5*time.Millisecond)
}

func TestHubDropsFailingObserver(t *testing.T) {
	_, a, b := pair(t, CallConfig{})
	hub := NewUpdateHub(a.calls)
	go hub.Run()

	bad := &fakeObserver{id: "bad", fail: true}
	good := &fakeObserver{id: "good"}
	hub.Join(bad)
	hub.Join(good)

	require.Eventually(t, bad.isClosed, waitFor, 5*time.Millisecond)

	require.NoError(t, a.calls.StartCall(context.Background(), b.id, ""))
	require.Eventually(t, func() bool { return len(good.states()) >= 2 }, waitFor, 5*time.Millisecond)

	hub.Stop()
	require.Eventually(t, good.isClosed, waitFor, 5*time.Millisecond)
}

func TestHubLeave(t *testing.T) {
	_, a, _ := pair(t, CallConfig{})
	hub := NewUpdateHub(a.calls)
	go hub.Run()
	defer hub.Stop()

	o := &fakeObserver{id: "ui"}
	hub.Join(o)
	hub.Leave(o)
	require.NoError(t, a.calls.StartCall(context.Background(), "B", ""))

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(o.states()), 1)
	assert.False(t, o.isClosed())
}
