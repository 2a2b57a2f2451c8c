// Package apiclient implements the direct API session controller: it
// exchanges credentials, passwordless confirmations, or one-time app
// codes for tokens against the identity platform's HTTP API, with no
// redirect involvement. Provider failures are propagated to the caller
// verbatim, since the calling application renders its own error UI from
// the provider's error shape.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"lds.li/appauth/internal"
	"lds.li/appauth/session"
	"lds.li/appauth/storage"
)

var baseLogAttr = slog.String("component", "api-session")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

// DefaultKeys is the KeyMap used when none is configured: every field
// persisted, under stable names.
var DefaultKeys = storage.KeyMap{
	AccessToken:  "appauth.accessToken",
	IDToken:      "appauth.idToken",
	RefreshToken: "appauth.refreshToken",
	TokenType:    "appauth.tokenType",
	ExpiresAt:    "appauth.expiresAt",
	Session:      "appauth.session",
	Username:     "appauth.username",
}

// Config carries the endpoint configuration for the API variant.
type Config struct {
	// ClientID of the registered application. Required.
	ClientID string
	// BaseURL of the identity platform API. Required.
	BaseURL string
	// AppCodeBaseURL is the base URL of the custom app code surface,
	// when it is served separately. Defaults to BaseURL.
	AppCodeBaseURL string
	// GlobalLogoutURI, if set, receives a best-effort authenticated
	// call during Logout before local state is cleared.
	GlobalLogoutURI string
	// HTTPClient used for API requests. The oauth2.HTTPClient context
	// value takes precedence.
	HTTPClient *http.Client
	// Storage backend for token and session fields. Defaults to an
	// in-memory store.
	Storage storage.Store
	// Keys maps each logical field to its physical storage key. A
	// zero-value field opts that field out of persistence entirely.
	// Defaults to DefaultKeys.
	Keys *storage.KeyMap
}

// ProviderError is a request the provider rejected. Body is the
// provider's error response verbatim; callers depend on its shape for
// UI decisions, so it is never rewritten.
type ProviderError struct {
	Status int
	Body   []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// Handle is the intermediate credential proving a passwordless
// challenge was issued, pending code confirmation.
type Handle struct {
	Session  string
	Username string
}

// Client is the API-variant session controller.
type Client struct {
	cfg  Config
	keys storage.KeyMap

	// handle caches the passwordless session handle, lazily hydrated
	// from the store on first access.
	mu       sync.Mutex
	handle   Handle
	hydrated bool
}

// New validates cfg and constructs the controller. A missing required
// field fails with a session.ConfigError naming it.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, &session.ConfigError{Field: "ClientID"}
	}
	if cfg.BaseURL == "" {
		return nil, &session.ConfigError{Field: "BaseURL"}
	}

	if cfg.Storage == nil {
		cfg.Storage = &storage.MemStore{}
	}
	keys := DefaultKeys
	if cfg.Keys != nil {
		keys = *cfg.Keys
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.AppCodeBaseURL == "" {
		cfg.AppCodeBaseURL = cfg.BaseURL
	}
	cfg.AppCodeBaseURL = strings.TrimSuffix(cfg.AppCodeBaseURL, "/")

	return &Client{cfg: cfg, keys: keys}, nil
}

// setField writes a logical field, honoring the per-field opt-out.
// Store failures are logged; persistence is best effort, the in-memory
// result of the operation stands either way.
func (c *Client) setField(ctx context.Context, key, value string) {
	if key == "" {
		return
	}
	if err := c.cfg.Storage.SetItem(ctx, key, value); err != nil {
		slog.WarnContext(ctx, "persisting field", baseLogAttr, slog.String("key", key), errAttr(err))
	}
}

func (c *Client) getField(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	v, ok, err := c.cfg.Storage.GetItem(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "reading field", baseLogAttr, slog.String("key", key), errAttr(err))
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (c *Client) removeField(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := c.cfg.Storage.RemoveItem(ctx, key); err != nil {
		slog.WarnContext(ctx, "removing field", baseLogAttr, slog.String("key", key), errAttr(err))
	}
}

// persistToken writes a normalized token record field by field, so
// constrained backends with per-key size limits never hold a serialized
// blob.
func (c *Client) persistToken(ctx context.Context, tok *session.Token) {
	c.setField(ctx, c.keys.AccessToken, tok.AccessToken)
	if tok.IDToken != "" {
		c.setField(ctx, c.keys.IDToken, tok.IDToken)
	}
	if tok.RefreshToken != "" {
		c.setField(ctx, c.keys.RefreshToken, tok.RefreshToken)
	}
	if tok.TokenType != "" {
		c.setField(ctx, c.keys.TokenType, tok.TokenType)
	}
	if !tok.Expiry.IsZero() {
		c.setField(ctx, c.keys.ExpiresAt, tok.Expiry.Format(time.RFC3339))
	}
}

// post sends a JSON request to base+path and returns the response
// body. A non-2xx status is returned as a ProviderError carrying the
// body verbatim.
func (c *Client) post(ctx context.Context, base, path string, body any) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	res, err := internal.ResolveHTTPClient(req.Context(), c.cfg.HTTPClient).Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", req.URL.Path, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &ProviderError{Status: res.StatusCode, Body: body}
	}

	return body, nil
}
