package service

import (
	"errors"
	"fmt"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
)

var ErrEncryptionDisabled = errors.New("recipient has encryption disabled")

// ChatService seals and opens text payloads for other users. It does not
// talk to the message endpoints; callers ship the sealed form themselves.
type ChatService struct {
	box  port.Box
	keys port.KeyCache
	self domain.KeyPair
}

func NewChatService(box port.Box, keys port.KeyCache, self domain.KeyPair) *ChatService {
	return &ChatService{
		box:  box,
		keys: keys,
		self: self,
	}
}

func (s *ChatService) PublicKey() string {
	return s.self.PublicKey
}

func (s *ChatService) RememberKey(userID domain.UserID, publicKey string, encryptionEnabled bool) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if encryptionEnabled && !s.box.ValidKey(publicKey) {
		return domain.ErrInvalidKey
	}
	s.keys.Put(userID, publicKey, encryptionEnabled)
	return nil
}

func (s *ChatService) Seal(to domain.UserID, content string) (*domain.SealedMessage, error) {
	if content == "" {
		return nil, errors.New("message content cannot be empty")
	}
	key, err := s.keyFor(to)
	if err != nil {
		return nil, err
	}
	return s.box.Seal(content, key.PublicKey, s.self.PrivateKey)
}

func (s *ChatService) Open(from domain.UserID, msg domain.SealedMessage) (string, error) {
	key, err := s.keyFor(from)
	if err != nil {
		return "", err
	}
	return s.box.Open(msg, key.PublicKey, s.self.PrivateKey)
}

func (s *ChatService) keyFor(userID domain.UserID) (port.CachedKey, error) {
	key, ok := s.keys.Get(userID)
	if !ok {
		return port.CachedKey{}, fmt.Errorf("%w: %s", domain.ErrUnknownKey, userID)
	}
	if !key.EncryptionEnabled {
		return port.CachedKey{}, ErrEncryptionDisabled
	}
	return key, nil
}
