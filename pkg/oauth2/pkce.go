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

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PKCEChallenge is a client-side verifier/challenge pair. The verifier
// never leaves the client; only the S256 challenge travels in the
// authorization request.
type PKCEChallenge struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// GeneratePKCE creates a verifier of 32 random bytes and its S256
// challenge, both base64url-encoded without padding.
func GeneratePKCE() (*PKCEChallenge, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("oauth2: failed to generate code verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       S256Challenge(verifier),
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// S256Challenge computes the PKCE S256 transform of a code verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a supplied verifier against the recorded challenge
// in constant time.
func VerifyPKCE(codeChallenge, codeVerifier string) bool {
	computed := S256Challenge(codeVerifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) == 1
}
