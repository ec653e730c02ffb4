package idp

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/utils"
	"golang.org/x/oauth2"
)

// Tokens is a token endpoint reply. Beyond claim extraction the values are
// opaque.
type Tokens struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	IDToken          string `json:"-"`
	TokenType        string `json:"tokenType,omitempty"`
	Scope            string `json:"scope,omitempty"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn,omitempty"`
}

func tokensFrom(tok *oauth2.Token) *Tokens {
	return &Tokens{
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		TokenType:        utils.AsString(tok.TokenType, "Bearer"),
		IDToken:          utils.AsString(tok.Extra("id_token"), ""),
		Scope:            utils.AsString(tok.Extra("scope"), ""),
		ExpiresIn:        utils.AsInt64(tok.Extra("expires_in"), DefaultExpiresIn),
		RefreshExpiresIn: utils.AsInt64(tok.Extra("refresh_expires_in"), 0),
	}
}

// BuildAuthorizeURL returns the provider authorization URL for a PKCE (S256)
// login. It performs no I/O. An empty scope uses the configured scope.
func (c *Client) BuildAuthorizeURL(redirectURI, scope, state, codeChallenge string) string {
	conf := c.oauthConfig(redirectURI)
	if s := strings.Fields(scope); len(s) > 0 {
		conf.Scopes = s
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if c.cfg.IDPHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("kc_idp_hint", c.cfg.IDPHint))
	}
	return conf.AuthCodeURL(state, opts...)
}

// ExchangeAuthorizationCode redeems an authorization code with its PKCE
// verifier.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code, verifier, redirectURI string) (tokens *Tokens, err error) {
	start := time.Now()
	defer func() { c.observe("token_exchange", start, err) }()
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	tok, err := c.oauthConfig(redirectURI).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, tokenError("exchange authorization code", err)
	}
	return tokensFrom(tok), nil
}

// Refresh redeems a refresh token. The provider may rotate it; the returned
// Tokens carry whichever refresh token is current.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (tokens *Tokens, err error) {
	start := time.Now()
	defer func() { c.observe("token_refresh", start, err) }()
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	src := c.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError("refresh token", err)
	}
	return tokensFrom(tok), nil
}
