package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"lds.li/appauth/internal"
	"lds.li/appauth/session"
)

// tokenResponse is the provider's token shape on the auth endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (tr tokenResponse) token(now time.Time) *session.Token {
	return &session.Token{
		AccessToken:  tr.AccessToken,
		IDToken:      tr.IDToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Expiry:       session.AbsoluteExpiry(now, tr.ExpiresIn),
	}
}

// PasswordlessStart are the caller-supplied fields for starting a
// passwordless login.
type PasswordlessStart struct {
	Username         string `json:"username"`
	AppsBaseURI      string `json:"appsBaseUri,omitempty"`
	LoginAppBasePath string `json:"loginAppBasePath,omitempty"`
}

// PasswordlessChallenge is the provider's response to a passwordless
// start: the session handle pending code confirmation, plus the raw
// response for callers that need more of it.
type PasswordlessChallenge struct {
	Session string `json:"session"`

	Raw json.RawMessage `json:"-"`
}

// InitiatePasswordlessAuth starts a passwordless login for the given
// username. The returned session handle and the username are persisted
// independently, each honoring its per-field opt-out, so the later
// confirmation can run without the caller re-supplying them.
func (c *Client) InitiatePasswordlessAuth(ctx context.Context, start PasswordlessStart) (*PasswordlessChallenge, error) {
	if start.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	body := struct {
		ClientID string `json:"clientId"`
		PasswordlessStart
	}{ClientID: c.cfg.ClientID, PasswordlessStart: start}

	raw, err := c.post(ctx, c.cfg.BaseURL, "/auth/passwordless/start", body)
	if err != nil {
		return nil, err
	}

	ch := &PasswordlessChallenge{Raw: raw}
	if err := json.Unmarshal(raw, ch); err != nil {
		return nil, fmt.Errorf("decoding passwordless response: %w", err)
	}

	c.mu.Lock()
	c.handle = Handle{Session: ch.Session, Username: start.Username}
	c.hydrated = true
	c.mu.Unlock()

	c.setField(ctx, c.keys.Session, ch.Session)
	c.setField(ctx, c.keys.Username, start.Username)

	return ch, nil
}

// PasswordlessConfirm are the fields for confirming a passwordless
// login. Session and Username may be left empty; they are backfilled
// from the cached session handle, or from storage.
type PasswordlessConfirm struct {
	Code     string `json:"code"`
	Session  string `json:"session,omitempty"`
	Username string `json:"username,omitempty"`
}

// ConfirmPasswordlessAuth completes a passwordless login. On success
// the returned token record is normalized and persisted, and the
// session handle is consumed. Provider rejections surface as a
// ProviderError carrying the provider's error body untouched.
func (c *Client) ConfirmPasswordlessAuth(ctx context.Context, confirm PasswordlessConfirm) (*session.Token, error) {
	if confirm.Code == "" {
		return nil, fmt.Errorf("code is required")
	}

	if confirm.Session == "" || confirm.Username == "" {
		h := c.currentHandle(ctx)
		if confirm.Session == "" {
			confirm.Session = h.Session
		}
		if confirm.Username == "" {
			confirm.Username = h.Username
		}
	}

	body := struct {
		ClientID string `json:"clientId"`
		PasswordlessConfirm
	}{ClientID: c.cfg.ClientID, PasswordlessConfirm: confirm}

	raw, err := c.post(ctx, c.cfg.BaseURL, "/auth/passwordless/confirm", body)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	tok := tr.token(time.Now())
	c.persistToken(ctx, tok)

	// the handle is single use
	c.mu.Lock()
	c.handle = Handle{}
	c.hydrated = true
	c.mu.Unlock()
	c.removeField(ctx, c.keys.Session)

	return tok, nil
}

// currentHandle returns the session handle, hydrating the in-memory
// cache from storage on first access.
func (c *Client) currentHandle(ctx context.Context) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hydrated {
		c.handle = Handle{
			Session:  c.getField(ctx, c.keys.Session),
			Username: c.getField(ctx, c.keys.Username),
		}
		c.hydrated = true
	}
	return c.handle
}

// InitiatePasswordAuth performs a direct credential exchange. On
// success the token record is normalized and persisted.
func (c *Client) InitiatePasswordAuth(ctx context.Context, username, password string) (*session.Token, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	body := struct {
		ClientID string `json:"clientId"`
		Username string `json:"username"`
		Password string `json:"password"`
	}{ClientID: c.cfg.ClientID, Username: username, Password: password}

	raw, err := c.post(ctx, c.cfg.BaseURL, "/auth/login", body)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	tok := tr.token(time.Now())
	c.persistToken(ctx, tok)
	c.setField(ctx, c.keys.Username, username)

	return tok, nil
}

// RedeemCustomAppCode exchanges a one-time custom app code for a token
// triple. The endpoint uses its own field names, which are mapped onto
// the normalized record before persisting.
func (c *Client) RedeemCustomAppCode(ctx context.Context, code string) (*session.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	body := struct {
		ClientID string `json:"clientId"`
		Code     string `json:"code"`
	}{ClientID: c.cfg.ClientID, Code: code}

	raw, err := c.post(ctx, c.cfg.AppCodeBaseURL, "/appcode/redeem", body)
	if err != nil {
		return nil, err
	}

	var rr struct {
		AccessToken  string `json:"accessToken"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("decoding app code response: %w", err)
	}

	tok := &session.Token{
		AccessToken:  rr.AccessToken,
		IDToken:      rr.IDToken,
		RefreshToken: rr.RefreshToken,
		Expiry:       session.AbsoluteExpiry(time.Now(), rr.ExpiresIn),
	}
	c.persistToken(ctx, tok)

	return tok, nil
}

// GetLoginMethods looks up the login methods configured for the given
// login identifier. The result is never cached; every call re-queries
// so it reflects the provider's current configuration.
func (c *Client) GetLoginMethods(ctx context.Context, login string) (json.RawMessage, error) {
	return c.get(ctx, "/auth/methods?login="+url.QueryEscape(login))
}

// GetAccessToken reads the persisted access token. It returns the empty
// string when the field is absent or has no configured storage key.
func (c *Client) GetAccessToken(ctx context.Context) string {
	return c.getField(ctx, c.keys.AccessToken)
}

// Logout ends the session. When a global logout URI is configured and
// an access token is held, it first makes a single authenticated call
// to it so the provider can end the upstream session; the result is
// logged and otherwise ignored, provider failures never block local
// cleanup. It then removes every configured session and token field
// from storage. Logout never fails; store errors are logged.
func (c *Client) Logout(ctx context.Context) {
	if c.cfg.GlobalLogoutURI != "" {
		if at := c.getField(ctx, c.keys.AccessToken); at != "" {
			c.globalLogout(ctx, at)
		}
	}

	c.mu.Lock()
	c.handle = Handle{}
	c.hydrated = true
	c.mu.Unlock()

	for _, key := range c.keys.All() {
		c.removeField(ctx, key)
	}
}

func (c *Client) globalLogout(ctx context.Context, accessToken string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GlobalLogoutURI, nil)
	if err != nil {
		slog.WarnContext(ctx, "building global logout request", baseLogAttr, errAttr(err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := internal.ResolveHTTPClient(ctx, c.cfg.HTTPClient).Do(req)
	if err != nil {
		slog.WarnContext(ctx, "global logout", baseLogAttr, errAttr(err))
		return
	}
	_ = res.Body.Close()
}
