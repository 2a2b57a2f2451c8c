package storage

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tink-crypto/tink-go/v2/tink"
)

// EncryptedStore wraps another Store, AEAD-encrypting every value before
// it reaches the backend. The physical key is bound in as associated
// data, so a ciphertext copied from one key to another will not decrypt.
// Useful when the backing store is shared or readable by other code on
// the page.
type EncryptedStore struct {
	backend Store
	aead    tink.AEAD
}

var _ Store = &EncryptedStore{}

// NewEncryptedStore returns a Store that encrypts values with the given
// AEAD before writing them to backend.
func NewEncryptedStore(backend Store, aead tink.AEAD) *EncryptedStore {
	return &EncryptedStore{backend: backend, aead: aead}
}

func (s *EncryptedStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	enc, ok, err := s.backend.GetItem(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	ct, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false, fmt.Errorf("decoding stored value for %s: %w", key, err)
	}

	pt, err := s.aead.Decrypt(ct, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("decrypting stored value for %s: %w", key, err)
	}

	return string(pt), true, nil
}

func (s *EncryptedStore) SetItem(ctx context.Context, key, value string) error {
	ct, err := s.aead.Encrypt([]byte(value), []byte(key))
	if err != nil {
		return fmt.Errorf("encrypting value for %s: %w", key, err)
	}

	return s.backend.SetItem(ctx, key, base64.RawURLEncoding.EncodeToString(ct))
}

func (s *EncryptedStore) RemoveItem(ctx context.Context, key string) error {
	return s.backend.RemoveItem(ctx, key)
}
