package domain

import (
	"github.com/google/uuid"
)

// UserID is the identifier handed out by the auth store. The client never
// mints one, it only carries them around.
type UserID string

func (id UserID) String() string {
	return string(id)
}

type CallID uuid.UUID

func NewCallID() CallID {
	return CallID(uuid.New())
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

func (id CallID) IsZero() bool {
	return id == CallID(uuid.Nil)
}
