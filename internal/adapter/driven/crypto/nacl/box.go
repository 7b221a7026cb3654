package nacl

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"golang.org/x/crypto/nacl/box"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Box is public-key authenticated encryption (Curve25519, XSalsa20 and
// Poly1305). Keys, nonces and ciphertexts travel as standard base64.
type Box struct {
	rand io.Reader
}

func NewBox() *Box {
	return &Box{rand: rand.Reader}
}

func (b *Box) GenerateKeyPair() (domain.KeyPair, error) {
	pub, priv, err := box.GenerateKey(b.rand)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return domain.KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
	}, nil
}

func (b *Box) ValidKey(key string) bool {
	_, err := decodeKey(key)
	return err == nil
}

func (b *Box) Seal(plaintext, recipientPublicKey, senderPrivateKey string) (*domain.SealedMessage, error) {
	peer, err := decodeKey(recipientPublicKey)
	if err != nil {
		return nil, err
	}
	priv, err := decodeKey(senderPrivateKey)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := box.Seal(nil, []byte(plaintext), &nonce, peer, priv)

	return domain.NewSealedMessage(
		base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(nonce[:]),
	)
}

func (b *Box) Open(msg domain.SealedMessage, senderPublicKey, recipientPrivateKey string) (string, error) {
	peer, err := decodeKey(senderPublicKey)
	if err != nil {
		return "", err
	}
	priv, err := decodeKey(recipientPrivateKey)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", domain.ErrDecrypt)
	}
	rawNonce, err := base64.StdEncoding.DecodeString(msg.Nonce)
	if err != nil || len(rawNonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce", domain.ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], rawNonce)

	plain, ok := box.Open(nil, ciphertext, &nonce, peer, priv)
	if !ok {
		return "", domain.ErrDecrypt
	}
	return string(plain), nil
}

func decodeKey(s string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != keySize {
		return nil, domain.ErrInvalidKey
	}
	var k [keySize]byte
	copy(k[:], raw)
	return &k, nil
}
