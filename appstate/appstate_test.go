package appstate

import (
	"net/url"
	"testing"
)

func TestCaptureEncodeDecodeRoundTrip(t *testing.T) {
	u, err := url.Parse("https://app.example.com/reports/weekly?account=acct1&cohortId=c9&utm_source=mail")
	if err != nil {
		t.Fatal(err)
	}

	s := Capture(u, DefaultParams, map[string]string{
		"view":    "expanded",
		"account": "acct2",
	})

	// captured whitelist params first, path, then overrides. account was
	// already present so the override updates it in place.
	wantKeys := []string{"account", "cohortId", "path", "view"}
	gotKeys := s.Keys()
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("want keys %v, got %v", wantKeys, gotKeys)
	}
	for i := range wantKeys {
		if gotKeys[i] != wantKeys[i] {
			t.Fatalf("want keys %v, got %v", wantKeys, gotKeys)
		}
	}
	if v, _ := s.Get("account"); v != "acct2" {
		t.Errorf("override did not win: got account %q", v)
	}
	if _, ok := s.Get("utm_source"); ok {
		t.Error("non-whitelisted parameter captured")
	}

	decoded, err := Decode(s.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(decoded) {
		t.Errorf("state did not round trip: want %v, got %v", s, decoded)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	build := func() *State {
		s := &State{}
		s.Set("account", "a1")
		s.Set("path", "/p")
		s.Set("custom", "x y&z=1")
		return s
	}

	if build().Encode() != build().Encode() {
		t.Error("equal states encoded differently")
	}
}

func TestCaptureRootPathOmitted(t *testing.T) {
	u, _ := url.Parse("https://app.example.com/?account=a")
	s := Capture(u, DefaultParams, nil)

	if _, ok := s.Get(PathKey); ok {
		t.Error("root path should not be captured")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not!!valid@@base64"); err == nil {
		t.Error("want error decoding garbage")
	}
}

func TestReturnURL(t *testing.T) {
	s := &State{}
	s.Set("account", "a1")
	s.Set("projectId", "p1")
	s.Set(PathKey, "/dash")
	s.Set("callerField", "ignored")

	if got, want := s.ReturnURL(DefaultParams), "/dash?account=a1&projectId=p1"; got != want {
		t.Errorf("want %s, got %s", want, got)
	}

	empty := &State{}
	if got := empty.ReturnURL(DefaultParams); got != "/" {
		t.Errorf("want / for empty state, got %s", got)
	}
}
