package cardvault

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"frontdesk/internal/domain"
)

const nonceSize = 24

var (
	ErrInvalidKey    = errors.New("card vault key must be 32 bytes")
	ErrCorruptRecord = errors.New("card record cannot be opened")
)

// Vault seals stored cards before they reach the booking store.
type Vault struct {
	key [32]byte
}

func New(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	v := &Vault{}
	copy(v.key[:], key)
	return v, nil
}

// NewFromHex accepts the 64-char hex form used in configuration.
func NewFromHex(s string) (*Vault, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode card vault key: %w", err)
	}
	return New(key)
}

// NewRandom creates a vault with a fresh key, for development only.
func NewRandom() (*Vault, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate card vault key: %w", err)
	}
	return New(key)
}

func (v *Vault) Seal(card domain.StoredCard) ([]byte, error) {
	plain, err := json.Marshal(card)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &v.key), nil
}

func (v *Vault) Open(sealed []byte) (*domain.StoredCard, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrCorruptRecord
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, ErrCorruptRecord
	}
	var card domain.StoredCard
	if err := json.Unmarshal(plain, &card); err != nil {
		return nil, ErrCorruptRecord
	}
	return &card, nil
}
