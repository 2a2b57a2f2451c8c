// Package internal holds request plumbing shared by the two session
// controllers.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// ResolveHTTPClient picks the client for an outgoing provider request.
// A client carried on the context under oauth2.HTTPClient wins, letting
// a caller override transport per call, the same way the oauth2 package
// honors it during exchanges. Otherwise the controller's configured
// Config.HTTPClient is used, and with neither set the default client.
func ResolveHTTPClient(ctx context.Context, configured *http.Client) *http.Client {
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return hc
	}
	if configured != nil {
		return configured
	}
	return http.DefaultClient
}

// MergeQuery adds params to rawURL's query string, keeping any query
// parameters the URL already carries. Keys present in params replace
// same-named keys on the URL; unrelated existing keys are untouched.
func MergeQuery(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", rawURL, err)
	}

	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
