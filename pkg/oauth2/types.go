// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-certauth.
//
// go-certauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package oauth2 implements the authorization-code grant used to bind a
// verified certificate login to tokens: single-use codes with redirect
// and PKCE binding, JWT access tokens, opaque refresh tokens, and
// idempotent introspection and revocation.
package oauth2

import "time"

// CodeChallengeMethodS256 is the only supported PKCE method. Plain
// challenges are rejected.
const CodeChallengeMethodS256 = "S256"

// AuthorizationCode binds a verified login to a client, redirect target
// and optional PKCE challenge. Redeemable exactly once.
type AuthorizationCode struct {
	Code                string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Used                bool
}

// Client is a registered relying application. Public clients have no
// secret and must use PKCE.
type Client struct {
	ID           string
	Secret       string
	RedirectURIs []string
	Public       bool
}

// allowsRedirect reports whether uri is registered for the client.
func (c *Client) allowsRedirect(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// TokenPair is the result of a successful code or refresh exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// Introspection is the RFC 7662 view of a token.
type Introspection struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// IssueCodeParams describes the authorization code to mint after a
// successful certificate login.
type IssueCodeParams struct {
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ExchangeParams carries a token-endpoint redemption request. Exactly
// one of ClientSecret or CodeVerifier authenticates the caller.
type ExchangeParams struct {
	Code         string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RedirectURI  string
}
