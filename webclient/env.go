package webclient

import (
	"net/http"
	"net/url"
)

// Env is the surface of the hosting environment the controller runs
// against: the current location, navigation, and the cookie jar. It is
// injected at construction so the session logic is deterministic under
// test and independent of any particular browser bridge.
type Env interface {
	// Location returns the current page location.
	Location() *url.URL
	// ReplaceLocation rewrites the visible location without triggering
	// a navigation, history.replaceState style. Used to strip auth
	// parameters after a code exchange.
	ReplaceLocation(u string)
	// Navigate performs a full redirect to u.
	Navigate(u string)
	// Cookie returns the raw value of the named cookie, if present.
	Cookie(name string) (string, bool)
	// SetCookie writes (or, with a negative MaxAge, deletes) a cookie.
	SetCookie(c *http.Cookie)
}
