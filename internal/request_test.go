package internal

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestResolveHTTPClient(t *testing.T) {
	configured := &http.Client{}
	fromCtx := &http.Client{}
	ctx := context.WithValue(t.Context(), oauth2.HTTPClient, fromCtx)

	if got := ResolveHTTPClient(ctx, configured); got != fromCtx {
		t.Error("context client should win over the configured one")
	}
	if got := ResolveHTTPClient(t.Context(), configured); got != configured {
		t.Error("want the configured client without a context override")
	}
	if got := ResolveHTTPClient(t.Context(), nil); got != http.DefaultClient {
		t.Error("want the default client when nothing is set")
	}
}

func TestMergeQuery(t *testing.T) {
	for _, tc := range []struct {
		name   string
		rawURL string
		params url.Values
		want   string
	}{
		{
			name:   "no existing query",
			rawURL: "https://id.example.com/logout",
			params: url.Values{"client_id": {"c1"}},
			want:   "https://id.example.com/logout?client_id=c1",
		},
		{
			name:   "existing query preserved",
			rawURL: "https://id.example.com/logout?tenant=t1",
			params: url.Values{"client_id": {"c1"}},
			want:   "https://id.example.com/logout?client_id=c1&tenant=t1",
		},
		{
			name:   "param replaces same-named key",
			rawURL: "https://id.example.com/logout?client_id=old&tenant=t1",
			params: url.Values{"client_id": {"c1"}},
			want:   "https://id.example.com/logout?client_id=c1&tenant=t1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MergeQuery(tc.rawURL, tc.params)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("want %s, got %s", tc.want, got)
			}
		})
	}

	if _, err := MergeQuery("://bad", url.Values{}); err == nil {
		t.Error("want error for unparseable URL")
	}
}
