package service

import (
	"testing"

	"github.com/Wyydra/ya-client/internal/adapter/driven/crypto/nacl"
	keystore "github.com/Wyydra/ya-client/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChat(t *testing.T) *ChatService {
	t.Helper()
	box := nacl.NewBox()
	kp, err := box.GenerateKeyPair()
	require.NoError(t, err)
	return NewChatService(box, keystore.NewKeyCache(0), kp)
}

func TestChatRoundTrip(t *testing.T) {
	alice := newChat(t)
	bob := newChat(t)

	require.NoError(t, alice.RememberKey("bob", bob.PublicKey(), true))
	require.NoError(t, bob.RememberKey("alice", alice.PublicKey(), true))

	sealed, err := alice.Seal("bob", "see you at noon")
	require.NoError(t, err)

	plain, err := bob.Open("alice", *sealed)
	require.NoError(t, err)
	assert.Equal(t, "see you at noon", plain)
}

func TestChatKeyErrors(t *testing.T) {
	alice := newChat(t)

	_, err := alice.Seal("bob", "hi")
	assert.ErrorIs(t, err, domain.ErrUnknownKey)

	assert.ErrorIs(t, alice.RememberKey("bob", "nope", true), domain.ErrInvalidKey)
	assert.Error(t, alice.RememberKey("", alice.PublicKey(), true))

	require.NoError(t, alice.RememberKey("bob", "", false))
	_, err = alice.Seal("bob", "hi")
	assert.ErrorIs(t, err, ErrEncryptionDisabled)
}

func TestChatRejectsEmptyContent(t *testing.T) {
	alice := newChat(t)
	require.NoError(t, alice.RememberKey("bob", newChat(t).PublicKey(), true))

	_, err := alice.Seal("bob", "")
	assert.Error(t, err)
}

func TestChatOpenWithWrongSender(t *testing.T) {
	alice := newChat(t)
	bob := newChat(t)
	mallory := newChat(t)

	require.NoError(t, alice.RememberKey("bob", bob.PublicKey(), true))
	require.NoError(t, bob.RememberKey("alice", mallory.PublicKey(), true))

	sealed, err := alice.Seal("bob", "hi")
	require.NoError(t, err)
	_, err = bob.Open("alice", *sealed)
	assert.ErrorIs(t, err, domain.ErrDecrypt)
}
