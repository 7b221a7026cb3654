package nacl

import (
	"testing"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	b := NewBox()
	alice, err := b.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := b.GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := b.Seal("hello bob", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed.Ciphertext, "hello")

	plain, err := b.Open(*sealed, alice.PublicKey, bob.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", plain)
}

func TestNoncesDiffer(t *testing.T) {
	b := NewBox()
	alice, _ := b.GenerateKeyPair()
	bob, _ := b.GenerateKeyPair()

	first, err := b.Seal("same", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	second, err := b.Seal("same", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestOpenFailures(t *testing.T) {
	b := NewBox()
	alice, _ := b.GenerateKeyPair()
	bob, _ := b.GenerateKeyPair()
	mallory, _ := b.GenerateKeyPair()

	sealed, err := b.Seal("secret", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	_, err = b.Open(*sealed, mallory.PublicKey, bob.PrivateKey)
	assert.ErrorIs(t, err, domain.ErrDecrypt)

	tampered := *sealed
	tampered.Nonce = sealed.Nonce[:8]
	_, err = b.Open(tampered, alice.PublicKey, bob.PrivateKey)
	assert.ErrorIs(t, err, domain.ErrDecrypt)

	_, err = b.Open(*sealed, "not-a-key", bob.PrivateKey)
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestValidKey(t *testing.T) {
	b := NewBox()
	kp, _ := b.GenerateKeyPair()

	assert.True(t, b.ValidKey(kp.PublicKey))
	assert.False(t, b.ValidKey(""))
	assert.False(t, b.ValidKey("c2hvcnQ="))
}
