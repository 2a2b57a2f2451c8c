// Package session holds the normalized token record shared by the two
// session controller variants, the schedule that keeps it fresh, and
// the error taxonomy callers program against.
package session

import (
	"time"

	"golang.org/x/oauth2"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// Token is the normalized record of an issued credential set. Expiry is
// always an absolute instant, derived once at acquisition time, so the
// record can be serialized, reloaded after a page load, and still judged
// for freshness.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// FromOAuth2 builds a Token from an oauth2 token, lifting the id_token
// extra if the provider returned one.
func FromOAuth2(t *oauth2.Token) *Token {
	tok := &Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if id, ok := t.Extra("id_token").(string); ok {
		tok.IDToken = id
	}
	return tok
}

// OAuth2 converts the record back for use with oauth2 collaborators,
// e.g. request signing.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

// Valid reports whether the record carries a usable access token.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != ""
}

// ExpiresWithin reports whether the token's remaining lifetime is at or
// below window. A zero Expiry never expires.
func (t *Token) ExpiresWithin(window time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return t.Expiry.Sub(timeNow()) <= window
}

// AbsoluteExpiry converts an expires-in duration in seconds, as issued
// by token endpoints, to the absolute instant stored on a Token.
func AbsoluteExpiry(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}
