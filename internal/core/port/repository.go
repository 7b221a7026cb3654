package port

import (
	"github.com/Wyydra/ya-client/internal/core/domain"
)

type CachedKey struct {
	PublicKey         string
	EncryptionEnabled bool
}

type KeyCache interface {
	Put(userID domain.UserID, publicKey string, encryptionEnabled bool)
	Get(userID domain.UserID) (CachedKey, bool)
	Clear()
}

type Box interface {
	GenerateKeyPair() (domain.KeyPair, error)
	ValidKey(key string) bool
	Seal(plaintext, recipientPublicKey, senderPrivateKey string) (*domain.SealedMessage, error)
	Open(msg domain.SealedMessage, senderPublicKey, recipientPrivateKey string) (string, error)
}
