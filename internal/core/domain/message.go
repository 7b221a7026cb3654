package domain

import (
	"errors"
)

// SealedMessage is a text payload encrypted for one recipient. Both fields
// are base64.
type SealedMessage struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

type KeyPair struct {
	PublicKey  string `json:"public_key" yaml:"public_key"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
}

func NewSealedMessage(ciphertext, nonce string) (*SealedMessage, error) {
	if ciphertext == "" || nonce == "" {
		return nil, errors.New("sealed message needs ciphertext and nonce")
	}
	return &SealedMessage{
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}, nil
}
