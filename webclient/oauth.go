package webclient

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"lds.li/appauth/session"
)

// OAuthClient is the external OAuth collaborator the controller drives.
// It owns the wire formats for the authorization-code grant and request
// signing; the controller only decides when its capabilities are used.
type OAuthClient interface {
	// ExchangeCode swaps an authorization code for a token record.
	ExchangeCode(ctx context.Context, code string) (*session.Token, error)
	// AuthCodeURL returns the provider's hosted authorization URI,
	// carrying the given state value.
	AuthCodeURL(state string) string
	// Sign annotates req with the bearer credentials from tok. It does
	// not perform the request.
	Sign(tok *session.Token, req *http.Request) error
}

// oauth2Client is the default OAuthClient, backed by an oauth2.Config.
type oauth2Client struct {
	cfg *oauth2.Config
}

var _ OAuthClient = &oauth2Client{}

func (o *oauth2Client) ExchangeCode(ctx context.Context, code string) (*session.Token, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return session.FromOAuth2(tok), nil
}

func (o *oauth2Client) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

func (o *oauth2Client) Sign(tok *session.Token, req *http.Request) error {
	tok.OAuth2().SetAuthHeader(req)
	return nil
}
