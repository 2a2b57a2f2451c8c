package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/keyset"
)

func TestMemStore(t *testing.T) {
	s := &MemStore{}
	testStore(t, s)
}

func TestEncryptedStore(t *testing.T) {
	backend := &MemStore{}

	kh, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		t.Fatal(err)
	}
	primitive, err := aead.New(kh)
	if err != nil {
		t.Fatal(err)
	}

	s := NewEncryptedStore(backend, primitive)
	testStore(t, s)

	if err := s.SetItem(t.Context(), "tok", "secret-value"); err != nil {
		t.Fatal(err)
	}

	// the backend must never see the plaintext
	raw, ok, err := backend.GetItem(t.Context(), "tok")
	if err != nil || !ok {
		t.Fatalf("want stored ciphertext, got ok %t err %v", ok, err)
	}
	if raw == "secret-value" {
		t.Error("backend holds plaintext")
	}

	// ciphertext is bound to its key, a copy under another key must not
	// decrypt
	if err := backend.SetItem(t.Context(), "other", raw); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.GetItem(t.Context(), "other"); err == nil {
		t.Error("want error reading ciphertext moved to a different key")
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()

	ctx := t.Context()

	if _, ok, err := s.GetItem(ctx, "absent"); err != nil || ok {
		t.Fatalf("get of absent key: want absent with no error, got ok %t err %v", ok, err)
	}

	if err := s.SetItem(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetItem(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := s.GetItem(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("want value, got ok %t err %v", ok, err)
	}
	if v != "v2" {
		t.Errorf("want v2, got %s", v)
	}

	if err := s.RemoveItem(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetItem(ctx, "k"); ok {
		t.Error("value present after remove")
	}

	// removing an absent key is not an error
	if err := s.RemoveItem(ctx, "k"); err != nil {
		t.Fatal(err)
	}
}

func TestKeyMapAll(t *testing.T) {
	km := KeyMap{
		AccessToken: "at",
		Session:     "sess",
		Username:    "user",
	}

	want := []string{"at", "sess", "user"}
	if diff := cmp.Diff(want, km.All()); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}
}
