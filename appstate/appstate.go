// Package appstate encodes the caller's navigational context into an
// opaque string that survives an authentication redirect round trip.
// The encoded value rides in the OAuth state parameter, so encoding is
// strictly deterministic: equal states always produce byte-identical
// encodings, which allows them to be compared across the round trip.
package appstate

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// PathKey is the reserved state key holding the page path at capture
// time.
const PathKey = "path"

// DefaultParams is the default whitelist of navigational query
// parameters carried through an auth redirect.
var DefaultParams = []string{"account", "projectId", "cohortId"}

type pair struct {
	key, value string
}

// State is an ordered mapping of string keys to string values. Order is
// insertion order; setting an existing key updates it in place.
type State struct {
	pairs []pair
}

// Set stores value under key. A key that already exists keeps its
// original position.
func (s *State) Set(key, value string) {
	for i, p := range s.pairs {
		if p.key == key {
			s.pairs[i].value = value
			return
		}
	}
	s.pairs = append(s.pairs, pair{key: key, value: value})
}

// Get returns the value for key, and whether it was present.
func (s *State) Get(key string) (string, bool) {
	for _, p := range s.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// Len returns the number of keys held.
func (s *State) Len() int { return len(s.pairs) }

// Keys returns the keys in insertion order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.pairs))
	for _, p := range s.pairs {
		keys = append(keys, p.key)
	}
	return keys
}

// Equal reports whether two states hold the same keys and values in the
// same order.
func (s *State) Equal(o *State) bool {
	if len(s.pairs) != len(o.pairs) {
		return false
	}
	for i := range s.pairs {
		if s.pairs[i] != o.pairs[i] {
			return false
		}
	}
	return true
}

// Capture builds the state for an authentication attempt from the
// current location: the whitelisted query parameters present on u (in
// whitelist order), the current path (omitted for root), then the
// caller's overrides. Overrides win over captured values, and are
// applied in sorted key order so repeated captures are deterministic.
func Capture(u *url.URL, params []string, overrides map[string]string) *State {
	s := &State{}

	q := u.Query()
	for _, p := range params {
		if v := q.Get(p); v != "" {
			s.Set(p, v)
		}
	}

	if u.Path != "" && u.Path != "/" {
		s.Set(PathKey, u.Path)
	}

	okeys := make([]string, 0, len(overrides))
	for k := range overrides {
		okeys = append(okeys, k)
	}
	slices.Sort(okeys)
	for _, k := range okeys {
		s.Set(k, overrides[k])
	}

	return s
}

// Encode serializes the state to a URL-safe opaque string. The layout
// is a form-style pair list in insertion order, so Encode of equal
// states is byte-identical.
func (s *State) Encode() string {
	var b strings.Builder
	for i, p := range s.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

// Decode parses a string produced by Encode, preserving key order.
func Decode(encoded string) (*State, error) {
	rawb, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding state payload: %w", err)
	}
	raw := string(rawb)

	s := &State{}
	if raw == "" {
		return s, nil
	}
	for _, kv := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(kv, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("unescaping state key %q: %w", k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("unescaping state value %q: %w", v, err)
		}
		s.Set(key, val)
	}
	return s, nil
}

// ReturnURL rebuilds the location a user should land on after the
// redirect round trip: the captured path plus the whitelisted
// navigational parameters, with everything else (auth codes included)
// stripped. The result is relative.
func (s *State) ReturnURL(params []string) string {
	path := "/"
	if p, ok := s.Get(PathKey); ok {
		path = p
	}

	var q strings.Builder
	for _, p := range s.pairs {
		if p.key == PathKey || !slices.Contains(params, p.key) {
			continue
		}
		if q.Len() > 0 {
			q.WriteByte('&')
		}
		q.WriteString(url.QueryEscape(p.key))
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(p.value))
	}

	if q.Len() == 0 {
		return path
	}
	return path + "?" + q.String()
}
