package webclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lds.li/appauth/appstate"
	"lds.li/appauth/internal"
	"lds.li/appauth/session"
)

// AcquireOpts controls a single acquisition pass.
type AcquireOpts struct {
	// ExpiringRefresh forces a refresh-token grant for a held token
	// that is approaching expiry, rather than reusing it.
	ExpiringRefresh bool
	// RefreshWindow is the time-before-expiry threshold used when
	// judging a recovered token. Defaults to DefaultRefreshWindow.
	RefreshWindow time.Duration
}

// acquireAttempts bounds the recovery loop. Each pass can invalidate at
// most one credential source (a rejected refresh token, a near-expired
// stored record), so two retries are enough to drain them before the
// terminal login redirect.
const acquireAttempts = 3

// Acquire is the idempotent session entry point. With a fresh token
// already in memory it is a no-op. Otherwise it works through the
// recovery ladder: hand-off cookie, authorization-code exchange,
// refresh grant, persisted record, and finally an interactive login
// redirect. Failures on the way down the ladder are logged and
// swallowed; the caller-visible outcome of total failure is the
// redirect, not an error.
func (c *Client) Acquire(ctx context.Context, opts AcquireOpts) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquire(ctx, opts)
}

func (c *Client) acquire(ctx context.Context, opts AcquireOpts) error {
	window := opts.RefreshWindow
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	expiring := opts.ExpiringRefresh

	if c.token.Valid() && !expiring {
		return nil
	}

	for range acquireAttempts {
		var err error

		// the cookie and code sources only apply from the no-token
		// state; a held token goes straight to the refresh decision
		if !c.token.Valid() {
			var adopted bool
			adopted, err = c.tryHandoffCookie(ctx)
			if err == nil && adopted {
				return nil
			}
			if err == nil {
				adopted, err = c.tryCodeExchange(ctx)
				if err == nil && adopted {
					return nil
				}
			}
		}

		if err == nil && expiring && c.token.Valid() {
			rerr := c.refreshToken(ctx)
			if rerr == nil {
				return nil
			}
			// Deliberate fallback rather than an error: discard the
			// rejected credentials and restart the ladder from the
			// no-token state, which bottoms out in an interactive
			// redirect.
			slog.WarnContext(ctx, "refresh grant rejected, discarding token", baseLogAttr, errAttr(rerr))
			c.token = nil
			c.removeStoredToken(ctx)
			continue
		}

		if err != nil {
			slog.WarnContext(ctx, "token acquisition failed, recovering from storage", baseLogAttr, errAttr(err))
		}

		// Recovery: fall back to whatever the store still holds.
		stored, ok := c.loadStoredToken(ctx)
		if !ok {
			break
		}
		if !stored.ExpiresWithin(window) {
			// silently adopt, no user disruption
			c.token = stored
			return nil
		}
		// A near-expired stored record is not worth reusing. Pull it
		// from storage, keep its refresh token in memory, and force a
		// network refresh on the next pass.
		c.removeStoredToken(ctx)
		c.token = stored
		expiring = true
	}

	return c.redirectToLogin(ctx)
}

// tryHandoffCookie adopts a session written by a cooperating app on a
// shared parent domain. The cookie is single use: it is deleted the
// moment it is adopted. A malformed cookie is logged and ignored,
// falling through to the next recovery source.
func (c *Client) tryHandoffCookie(ctx context.Context) (bool, error) {
	v, ok := c.cfg.Env.Cookie(HandoffCookieName)
	if !ok {
		return false, nil
	}

	hc, err := parseHandoffCookie(v)
	if err != nil {
		slog.WarnContext(ctx, "ignoring malformed hand-off cookie", baseLogAttr, errAttr(err))
		return false, nil
	}

	tok := &session.Token{
		AccessToken:  hc.AccessToken,
		RefreshToken: hc.RefreshToken,
	}
	if hc.Expires > 0 {
		tok.Expiry = time.Unix(hc.Expires, 0)
	}

	c.token = tok
	c.persistToken(ctx)
	c.deleteHandoffCookie(hc.CookieDomain)

	return true, nil
}

func (c *Client) deleteHandoffCookie(domain string) {
	cookie := &http.Cookie{
		Name:   HandoffCookieName,
		Value:  "",
		MaxAge: -1,
		Path:   "/",
		Secure: true,
	}
	if domain != "" {
		cookie.Domain = "." + domain
	}
	c.cfg.Env.SetCookie(cookie)
}

// tryCodeExchange completes an authorization-code flow if the current
// location carries a code. On success the location is rewritten to
// strip the auth parameters, restoring the path and navigational
// parameters carried through the state round trip.
func (c *Client) tryCodeExchange(ctx context.Context) (bool, error) {
	loc := c.cfg.Env.Location()
	q := loc.Query()

	if qerr := q.Get("error"); qerr != "" {
		return false, fmt.Errorf("provider rejected authorization: %s: %s", qerr, q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		return false, nil
	}

	tok, err := c.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return false, fmt.Errorf("exchanging authorization code: %w", err)
	}

	c.token = tok
	c.persistToken(ctx)

	// A state that will not decode costs us the caller's navigational
	// context, nothing more. The session proceeds with empty state.
	st := &appstate.State{}
	if enc := q.Get("state"); enc != "" {
		decoded, err := appstate.Decode(enc)
		if err != nil {
			slog.WarnContext(ctx, "discarding undecodable application state", baseLogAttr, errAttr(err))
		} else {
			st = decoded
		}
	}
	c.cfg.Env.ReplaceLocation(st.ReturnURL(c.cfg.StateParams))

	return true, nil
}

// refreshToken performs the refresh-token grant directly against the
// token endpoint. Any non-OK response is a rejection.
func (c *Client) refreshToken(ctx context.Context) error {
	if c.token.RefreshToken == "" {
		return fmt.Errorf("held token has no refresh token")
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.token.RefreshToken},
		"redirect_uri":  {c.cfg.RedirectURI},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AccessTokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := internal.ResolveHTTPClient(ctx, c.cfg.HTTPClient).Do(req)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh request returned status %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading refresh response: %w", err)
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decoding refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("refresh response carries no access token")
	}

	tok := &session.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
		TokenType:    tr.TokenType,
		Expiry:       session.AbsoluteExpiry(time.Now(), tr.ExpiresIn),
	}
	// providers that do not rotate refresh tokens omit them from the
	// response
	if tok.RefreshToken == "" {
		tok.RefreshToken = c.token.RefreshToken
	}

	c.token = tok
	c.persistToken(ctx)

	return nil
}

// redirectToLogin is the terminal transition: every recovery source is
// exhausted, so an interactive flow is the only option left.
func (c *Client) redirectToLogin(ctx context.Context) error {
	if c.cfg.LoginRedirectURI != "" {
		u, err := internal.MergeQuery(c.cfg.LoginRedirectURI, url.Values{
			"originalUrl": {c.cfg.Env.Location().String()},
		})
		if err != nil {
			return fmt.Errorf("building login redirect: %w", err)
		}
		c.cfg.Env.Navigate(u)
		return nil
	}

	st := appstate.Capture(c.cfg.Env.Location(), c.cfg.StateParams, c.cfg.AppState)
	c.cfg.Env.Navigate(c.oauth.AuthCodeURL(st.Encode()))
	return nil
}
