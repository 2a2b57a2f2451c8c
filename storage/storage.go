// Package storage defines the persistence capability the session
// controllers write tokens through, plus a reference in-memory adapter
// and an encrypting decorator. Environment-specific backends (browser
// local storage bridges, secure mobile storage) live outside this
// module and plug in through the Store interface.
package storage

import "context"

// Store is the minimal key/value capability a persistence backend must
// provide. Implementations may be backed by anything from an in-process
// map to an asynchronous bridge into a host environment; every adapter
// presents the same blocking, context-aware contract, so callers never
// need to care which they were given.
type Store interface {
	// GetItem returns the stored value for key. ok is false if the key
	// has no value. error indicates a backend failure, not absence.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	// SetItem stores value under key, replacing any existing value.
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes the value for key. Removing an absent key is
	// not an error.
	RemoveItem(ctx context.Context, key string) error
}

// KeyMap maps each logical session field to the physical key it is
// persisted under. A zero-value field is a deliberate opt-out: that
// field is simply never written or read.
type KeyMap struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresAt    string
	Session      string
	Username     string
}

// All returns every configured (non opted-out) physical key.
func (k KeyMap) All() []string {
	var keys []string
	for _, key := range []string{k.AccessToken, k.IDToken, k.RefreshToken, k.TokenType, k.ExpiresAt, k.Session, k.Username} {
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
