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

package oauth2

import "errors"

var (
	// ErrInvalidGrant is returned when an authorization code is unknown,
	// expired, already redeemed, bound to a different redirect URI, or
	// fails PKCE verification. The reasons are deliberately collapsed
	// into one error; the distinction lives in server-side logs.
	ErrInvalidGrant = errors.New("oauth2: invalid_grant")

	// ErrInvalidClient is returned when a client is unknown or its
	// credentials do not match.
	ErrInvalidClient = errors.New("oauth2: invalid_client")

	// ErrInvalidRequest is returned when a request is structurally
	// invalid (missing code, unsupported grant type).
	ErrInvalidRequest = errors.New("oauth2: invalid_request")

	// ErrInvalidToken is returned when a bearer token is unknown,
	// expired or revoked.
	ErrInvalidToken = errors.New("oauth2: invalid_token")

	// ErrInvalidRedirectURI is returned at authorization time when the
	// redirect URI is not registered for the client.
	ErrInvalidRedirectURI = errors.New("oauth2: invalid redirect_uri")
)
