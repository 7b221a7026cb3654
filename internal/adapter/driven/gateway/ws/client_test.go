package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeServer accepts signaling connections and exposes the latest one.
type fakeServer struct {
	*httptest.Server
	accepted atomic.Int32
	userIDs  chan string
	conns    chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		userIDs: make(chan string, 8),
		conns:   make(chan *websocket.Conn, 8),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.userIDs <- r.URL.Query().Get("userId")
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func startClient(t *testing.T, srv *fakeServer) *Client {
	t.Helper()
	c := NewClient(Config{
		ServerURL:  srv.URL,
		UserID:     "alice",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		c.Close()
		<-c.Done()
	})

	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	require.NoError(t, c.WaitConnected(wctx))
	return c
}

func TestClientIdentifiesItself(t *testing.T) {
	srv := newFakeServer(t)
	startClient(t, srv)

	assert.Equal(t, "alice", <-srv.userIDs)
}

func TestClientEmitsFrames(t *testing.T) {
	srv := newFakeServer(t)
	c := startClient(t, srv)
	conn := srv.next(t)

	sig := domain.NewSignal(domain.SignalOffer, "v=0")
	err := c.Emit(context.Background(), domain.EventInitiate, domain.Outbound{To: "bob", From: "alice", Signal: &sig})
	require.NoError(t, err)

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, domain.EventInitiate, f.Event)

	var got domain.Outbound
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, domain.UserID("bob"), got.To)
	assert.Equal(t, "v=0", got.Signal.SDP)
}

func TestClientDispatchesToHandler(t *testing.T) {
	srv := newFakeServer(t)
	c := startClient(t, srv)
	conn := srv.next(t)

	got := make(chan json.RawMessage, 1)
	c.On(domain.EventRejected, func(data json.RawMessage) { got <- data })

	require.NoError(t, conn.WriteJSON(frame{Event: domain.EventOnlineUsers, Data: json.RawMessage(`["bob"]`)}))
	require.NoError(t, conn.WriteJSON(frame{Event: domain.EventRejected, Data: json.RawMessage(`{}`)}))

	select {
	case data := <-got:
		assert.JSONEq(t, `{}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestClientOffRemovesHandler(t *testing.T) {
	srv := newFakeServer(t)
	c := startClient(t, srv)
	conn := srv.next(t)

	var calls atomic.Int32
	c.On(domain.EventEnded, func(json.RawMessage) { calls.Add(1) })
	c.Off(domain.EventEnded)

	marker := make(chan struct{})
	c.On(domain.EventRejected, func(json.RawMessage) { close(marker) })

	require.NoError(t, conn.WriteJSON(frame{Event: domain.EventEnded}))
	require.NoError(t, conn.WriteJSON(frame{Event: domain.EventRejected}))

	<-marker
	assert.Zero(t, calls.Load())
}

func TestEmitWhileDisconnected(t *testing.T) {
	c := NewClient(Config{ServerURL: "http://127.0.0.1:1", UserID: "alice"})

	err := c.Emit(context.Background(), domain.EventEnd, domain.Outbound{To: "bob"})
	assert.ErrorIs(t, err, domain.ErrSignalingDelivery)
	assert.False(t, c.Connected())
}

func TestClientReconnects(t *testing.T) {
	srv := newFakeServer(t)
	c := startClient(t, srv)

	first := srv.next(t)
	first.Close()

	second := srv.next(t)
	defer second.Close()

	assert.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, srv.accepted.Load(), int32(2))
}

func TestCloseBeforeRun(t *testing.T) {
	c := NewClient(Config{ServerURL: "http://127.0.0.1:1", UserID: "alice"})
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done stayed open without Run")
	}
	assert.NoError(t, c.Run(context.Background()))
	assert.NoError(t, c.Close())
}

func TestCloseStopsRun(t *testing.T) {
	srv := newFakeServer(t)
	c := startClient(t, srv)
	conn := srv.next(t)
	defer conn.Close()

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.False(t, c.Connected())
	assert.Error(t, c.Run(context.Background()), "second Run")
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:5001", "ws://localhost:5001/ws?userId=alice"},
		{"https://chat.example.com/", "wss://chat.example.com/ws?userId=alice"},
		{"ws://10.0.0.1:5001/signal", "ws://10.0.0.1:5001/signal/ws?userId=alice"},
	}
	for _, tt := range tests {
		c := NewClient(Config{ServerURL: tt.server, UserID: "alice"})
		got, err := c.endpoint()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := NewClient(Config{ServerURL: "ftp://x", UserID: "alice"}).endpoint()
	assert.Error(t, err)
}
