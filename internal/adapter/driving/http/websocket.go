package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const updateWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API listens on loopback for a local UI.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSObserver pushes call updates to one UI connection.
type WSObserver struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (o *WSObserver) ID() string {
	return o.id
}

func (o *WSObserver) SendUpdate(u domain.CallUpdate) error {
	type updateDTO struct {
		Event string            `json:"event"`
		Data  domain.CallUpdate `json:"data"`
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.conn.SetWriteDeadline(time.Now().Add(updateWriteTimeout)); err != nil {
		return err
	}
	return o.conn.WriteJSON(updateDTO{Event: "call:update", Data: u})
}

func (o *WSObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.conn.Close()
}

// ServeWS upgrades the request and streams call updates until the UI goes
// away. Anything the UI sends is ignored; actions go through the REST API.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	observer := &WSObserver{
		id:   uuid.NewString(),
		conn: conn,
	}

	l := log.With().Str("observer_id", observer.id).Logger()
	l.Info().Msg("UI connected")

	h.Hub.Join(observer)

	defer func() {
		l.Info().Msg("UI disconnected")
		h.Hub.Leave(observer)
		observer.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
	}
}
