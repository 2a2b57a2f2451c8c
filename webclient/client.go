// Package webclient implements the redirect-based session controller
// for browser web apps authenticating against a hosted identity
// provider. It acquires a token via authorization-code exchange, a
// cross-domain hand-off cookie, or a refresh grant, persists it through
// a pluggable store, keeps it fresh on a schedule, and falls back to an
// interactive login redirect when nothing else works.
package webclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"lds.li/appauth/appstate"
	"lds.li/appauth/internal"
	"lds.li/appauth/session"
	"lds.li/appauth/storage"
)

const (
	// DefaultRefreshWindow is how close to expiry a token may get
	// before a scheduled tick renews it.
	DefaultRefreshWindow = 5 * time.Minute
	// DefaultPollInterval is how often the automatic refresh schedule
	// re-checks token freshness.
	DefaultPollInterval = 30 * time.Second
	// DefaultStorageKey is where the serialized token record is kept
	// when no key is configured.
	DefaultStorageKey = "appauth.token"

	// HandoffCookieName is the cookie cooperating apps on a shared
	// parent domain use to pass a session across.
	HandoffCookieName = "appauth_handoff"
	// handoffCookieMaxAge keeps the hand-off cookie short lived. The
	// importer deletes it on adoption; this is the secondary safety
	// net.
	handoffCookieMaxAge = 10
)

var baseLogAttr = slog.String("component", "web-session")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

// Config carries the endpoint configuration for the redirect variant.
type Config struct {
	// ClientID of the registered application. Required.
	ClientID string
	// AuthorizationURI is the provider's hosted authorization endpoint.
	// Required.
	AuthorizationURI string
	// AccessTokenURI is the provider's token endpoint. Required.
	AccessTokenURI string
	// RedirectURI is where the provider sends the authorization code.
	// Required.
	RedirectURI string
	// LogoutURI is the provider's logout endpoint. Required.
	LogoutURI string
	// LogoutRedirectURI is where the provider sends the user after
	// logout. Required.
	LogoutRedirectURI string
	// Scopes requested on the authorization grant.
	Scopes []string
	// GlobalLogoutURI, if set, receives a best-effort authenticated
	// call during a global logout.
	GlobalLogoutURI string
	// LoginRedirectURI, if set, is an alternate app login page used
	// instead of the provider's hosted authorization UI when an
	// interactive login is needed. It receives the original URL as an
	// originalUrl query parameter.
	LoginRedirectURI string
	// StorageKey the serialized token record is persisted under.
	// Defaults to DefaultStorageKey.
	StorageKey string
	// Storage backend for the token record. Defaults to an in-memory
	// store, which does not survive a page load.
	Storage storage.Store
	// AppState are caller fields carried through the auth redirect on
	// top of the captured navigational state.
	AppState map[string]string
	// StateParams overrides the whitelist of navigational query
	// parameters preserved across the redirect. Defaults to
	// appstate.DefaultParams.
	StateParams []string
	// Env is the hosting environment surface. Required.
	Env Env
	// HTTPClient used for direct token-endpoint requests. The
	// oauth2.HTTPClient context value takes precedence.
	HTTPClient *http.Client
	// OAuth overrides the default oauth2-backed collaborator.
	OAuth OAuthClient
}

// Client is the redirect-variant session controller. It holds at most
// one token record in memory, mutated only by Acquire and Logout.
type Client struct {
	cfg   Config
	oauth OAuthClient

	// mu serializes Acquire and guards token. Overlapping acquires (a
	// scheduled tick racing a manual call) queue rather than race.
	mu    sync.Mutex
	token *session.Token

	sched session.Scheduler
}

// New validates cfg and constructs the controller. Any missing required
// field fails with a session.ConfigError naming it.
func New(cfg Config) (*Client, error) {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"ClientID", cfg.ClientID},
		{"AuthorizationURI", cfg.AuthorizationURI},
		{"AccessTokenURI", cfg.AccessTokenURI},
		{"RedirectURI", cfg.RedirectURI},
		{"LogoutURI", cfg.LogoutURI},
		{"LogoutRedirectURI", cfg.LogoutRedirectURI},
	} {
		if f.value == "" {
			return nil, &session.ConfigError{Field: f.name}
		}
	}
	if cfg.Env == nil {
		return nil, &session.ConfigError{Field: "Env"}
	}

	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.Storage == nil {
		cfg.Storage = &storage.MemStore{}
	}
	if cfg.StateParams == nil {
		cfg.StateParams = appstate.DefaultParams
	}

	oc := cfg.OAuth
	if oc == nil {
		oc = &oauth2Client{cfg: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationURI,
				TokenURL: cfg.AccessTokenURI,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		}}
	}

	return &Client{cfg: cfg, oauth: oc}, nil
}

// Token returns a copy of the currently held token record, or nil if
// none is held.
func (c *Client) Token() *session.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return nil
	}
	tok := *c.token
	return &tok
}

// Sign annotates req with bearer credentials from the held token. It
// fails with session.ErrUnauthenticated if no token is held; it never
// performs the request.
func (c *Client) Sign(req *http.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.Valid() {
		return session.ErrUnauthenticated
	}
	return c.oauth.Sign(c.token, req)
}

// Logout tears down the session: the refresh schedule is stopped, the
// persisted and in-memory token records are dropped, and the user is
// navigated to the provider's logout endpoint with client_id and
// logout_uri merged into any query string the endpoint already carries.
// With global set, a best-effort authenticated call is made to the
// configured global-logout endpoint first; its result is ignored.
func (c *Client) Logout(ctx context.Context, global bool) error {
	c.StopAutomaticRefresh()

	c.mu.Lock()
	defer c.mu.Unlock()

	if global && c.cfg.GlobalLogoutURI != "" && c.token.Valid() {
		c.globalLogout(ctx)
	}

	c.token = nil
	if err := c.cfg.Storage.RemoveItem(ctx, c.cfg.StorageKey); err != nil {
		slog.WarnContext(ctx, "removing persisted token", baseLogAttr, errAttr(err))
	}

	u, err := internal.MergeQuery(c.cfg.LogoutURI, url.Values{
		"client_id":  {c.cfg.ClientID},
		"logout_uri": {c.cfg.LogoutRedirectURI},
	})
	if err != nil {
		return fmt.Errorf("building logout URI: %w", err)
	}
	c.cfg.Env.Navigate(u)

	return nil
}

func (c *Client) globalLogout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GlobalLogoutURI, nil)
	if err != nil {
		slog.WarnContext(ctx, "building global logout request", baseLogAttr, errAttr(err))
		return
	}
	if err := c.oauth.Sign(c.token, req); err != nil {
		slog.WarnContext(ctx, "signing global logout request", baseLogAttr, errAttr(err))
		return
	}
	res, err := internal.ResolveHTTPClient(ctx, c.cfg.HTTPClient).Do(req)
	if err != nil {
		slog.WarnContext(ctx, "global logout request", baseLogAttr, errAttr(err))
		return
	}
	_ = res.Body.Close()
}

// handoffCookie is the wire format of the cross-domain hand-off cookie.
type handoffCookie struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// Expires is the absolute expiry, Unix seconds.
	Expires      int64  `json:"expires,omitempty"`
	ClientID     string `json:"clientId"`
	CookieDomain string `json:"cookieDomain,omitempty"`
}

// ExportDomainCookie writes the hand-off cookie for domain, letting a
// cooperating application on a related subdomain import the current
// session. Fails with session.ErrUnauthenticated if no token is held.
func (c *Client) ExportDomainCookie(domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.Valid() {
		return session.ErrUnauthenticated
	}

	hc := handoffCookie{
		AccessToken:  c.token.AccessToken,
		RefreshToken: c.token.RefreshToken,
		ClientID:     c.cfg.ClientID,
		CookieDomain: domain,
	}
	if !c.token.Expiry.IsZero() {
		hc.Expires = c.token.Expiry.Unix()
	}
	b, err := json.Marshal(hc)
	if err != nil {
		return fmt.Errorf("encoding hand-off cookie: %w", err)
	}

	c.cfg.Env.SetCookie(&http.Cookie{
		Name:   HandoffCookieName,
		Value:  url.QueryEscape(string(b)),
		Domain: "." + domain,
		MaxAge: handoffCookieMaxAge,
		Path:   "/",
		Secure: true,
	})

	return nil
}

func parseHandoffCookie(value string) (*handoffCookie, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return nil, fmt.Errorf("unescaping cookie value: %w", err)
	}
	var hc handoffCookie
	if err := json.Unmarshal([]byte(raw), &hc); err != nil {
		return nil, fmt.Errorf("decoding cookie value: %w", err)
	}
	if hc.AccessToken == "" {
		return nil, fmt.Errorf("cookie carries no access token")
	}
	return &hc, nil
}

// persistToken writes the held token to the store. Persistence failures
// are logged and accepted: the in-memory session is usable either way,
// it just will not survive a reload.
func (c *Client) persistToken(ctx context.Context) {
	b, err := json.Marshal(c.token)
	if err != nil {
		slog.WarnContext(ctx, "encoding token for storage", baseLogAttr, errAttr(err))
		return
	}
	if err := c.cfg.Storage.SetItem(ctx, c.cfg.StorageKey, string(b)); err != nil {
		slog.WarnContext(ctx, "persisting token", baseLogAttr, errAttr(err))
	}
}

// loadStoredToken reads a token record back from the store. Absence and
// failure both report not-found; failures are logged.
func (c *Client) loadStoredToken(ctx context.Context) (*session.Token, bool) {
	v, ok, err := c.cfg.Storage.GetItem(ctx, c.cfg.StorageKey)
	if err != nil {
		slog.WarnContext(ctx, "reading persisted token", baseLogAttr, errAttr(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var tok session.Token
	if err := json.Unmarshal([]byte(v), &tok); err != nil {
		slog.WarnContext(ctx, "decoding persisted token", baseLogAttr, errAttr(err))
		return nil, false
	}
	if !tok.Valid() {
		return nil, false
	}
	return &tok, true
}

func (c *Client) removeStoredToken(ctx context.Context) {
	if err := c.cfg.Storage.RemoveItem(ctx, c.cfg.StorageKey); err != nil {
		slog.WarnContext(ctx, "removing persisted token", baseLogAttr, errAttr(err))
	}
}
