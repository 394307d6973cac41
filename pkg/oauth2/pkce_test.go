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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	require.NoError(t, err)

	assert.NotEmpty(t, pkce.CodeVerifier)
	assert.Equal(t, CodeChallengeMethodS256, pkce.CodeChallengeMethod)
	assert.Equal(t, S256Challenge(pkce.CodeVerifier), pkce.CodeChallenge)
	assert.NotEqual(t, pkce.CodeVerifier, pkce.CodeChallenge)
}

func TestS256Challenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", S256Challenge(verifier))
}

func TestVerifyPKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	require.NoError(t, err)

	assert.True(t, VerifyPKCE(pkce.CodeChallenge, pkce.CodeVerifier))
	assert.False(t, VerifyPKCE(pkce.CodeChallenge, "wrong-verifier"))
	assert.False(t, VerifyPKCE("", pkce.CodeVerifier))
}
