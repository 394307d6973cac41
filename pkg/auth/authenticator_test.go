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

package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certauth/pkg/encoding"
	"github.com/jeremyhahn/go-certauth/pkg/oauth2"
	"github.com/jeremyhahn/go-certauth/pkg/registry"
	"github.com/jeremyhahn/go-certauth/pkg/storage/memory"
)

type loginFixture struct {
	authenticator *Authenticator
	challenges    *ChallengeIssuer
	registry      *registry.Registry
	key           *rsa.PrivateKey
	serial        string
}

// newLoginFixture wires an authenticator with one registered user and
// certificate.
func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serialInt := big.NewInt(0).SetBytes([]byte{0x1B, 0xAD, 0xB0, 0x02})
	template := &x509.Certificate{
		SerialNumber: serialInt,
		Subject:      pkix.Name{CommonName: "alice"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	certPEM, err := encoding.EncodeCertificatePEM(cert)
	require.NoError(t, err)

	serial := "1BADB002"

	reg, err := registry.New(memory.New())
	require.NoError(t, err)
	require.NoError(t, reg.SaveUser(&registry.User{ID: "user-1", Name: "alice"}))
	require.NoError(t, reg.Register(&registry.Record{
		SerialNumber:   serial,
		UserID:         "user-1",
		CommonName:     "alice",
		NotBefore:      template.NotBefore,
		NotAfter:       template.NotAfter,
		CertificatePEM: certPEM,
	}))

	oauth2Service, err := oauth2.NewService(&oauth2.Config{
		Issuer:        "https://auth.test",
		SigningSecret: []byte("test-secret"),
		Clients: []*oauth2.Client{{
			ID:           "webapp",
			Secret:       "webapp-secret",
			RedirectURIs: []string{"https://app.test/callback"},
		}},
	})
	require.NoError(t, err)

	challenges := NewChallengeIssuer(nil)

	authenticator, err := NewAuthenticator(&AuthenticatorConfig{
		Challenges: challenges,
		Registry:   reg,
		OAuth2:     oauth2Service,
	})
	require.NoError(t, err)

	return &loginFixture{
		authenticator: authenticator,
		challenges:    challenges,
		registry:      reg,
		key:           key,
		serial:        serial,
	}
}

// sign produces the base64 PKCS#1 v1.5 signature the Agent would return
// for a challenge.
func (f *loginFixture) sign(t *testing.T, challenge string) string {
	t.Helper()
	digest := sha256.Sum256([]byte(challenge))
	sig, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func (f *loginFixture) loginRequest(t *testing.T) *LoginRequest {
	t.Helper()
	challenge, err := f.challenges.Issue()
	require.NoError(t, err)

	return &LoginRequest{
		Challenge:    challenge.Value,
		Signature:    f.sign(t, challenge.Value),
		SerialNumber: f.serial,
		ClientID:     "webapp",
		RedirectURI:  "https://app.test/callback",
		Scope:        "openid",
	}
}

func TestVerifyAndLogin(t *testing.T) {
	fixture := newLoginFixture(t)

	code, err := fixture.authenticator.VerifyAndLogin(fixture.loginRequest(t))
	require.NoError(t, err)
	assert.NotEmpty(t, code.Code)
	assert.Equal(t, "user-1", code.UserID)
	assert.Equal(t, "webapp", code.ClientID)
	assert.Equal(t, "https://app.test/callback", code.RedirectURI)
}

func TestVerifyAndLoginChallengeReplay(t *testing.T) {
	fixture := newLoginFixture(t)
	req := fixture.loginRequest(t)

	_, err := fixture.authenticator.VerifyAndLogin(req)
	require.NoError(t, err)

	// The same signed challenge never verifies twice.
	_, err = fixture.authenticator.VerifyAndLogin(req)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyAndLoginBurnsChallengeOnFailure(t *testing.T) {
	fixture := newLoginFixture(t)
	req := fixture.loginRequest(t)
	req.Signature = base64.StdEncoding.EncodeToString([]byte("forged"))

	_, err := fixture.authenticator.VerifyAndLogin(req)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// The failed attempt consumed the challenge; a correct signature no
	// longer helps.
	req.Signature = fixture.sign(t, req.Challenge)
	_, err = fixture.authenticator.VerifyAndLogin(req)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyAndLoginUnknownChallenge(t *testing.T) {
	fixture := newLoginFixture(t)
	req := fixture.loginRequest(t)
	req.Challenge = "never-issued"
	req.Signature = fixture.sign(t, req.Challenge)

	_, err := fixture.authenticator.VerifyAndLogin(req)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifyAndLoginUnknownSerial(t *testing.T) {
	fixture := newLoginFixture(t)
	req := fixture.loginRequest(t)
	req.SerialNumber = "DEADBEEF"

	_, err := fixture.authenticator.VerifyAndLogin(req)
	assert.ErrorIs(t, err, ErrCertificateInvalid)
}

func TestVerifyAndLoginRevokedCertificate(t *testing.T) {
	fixture := newLoginFixture(t)
	require.NoError(t, fixture.registry.Revoke(fixture.serial))

	_, err := fixture.authenticator.VerifyAndLogin(fixture.loginRequest(t))
	assert.ErrorIs(t, err, ErrCertificateInvalid)
}

func TestVerifyAndLoginExpiredCertificate(t *testing.T) {
	fixture := newLoginFixture(t)

	// Move the authenticator's clock past the certificate's notAfter.
	fixture.authenticator.now = func() time.Time {
		return time.Now().Add(48 * time.Hour)
	}

	_, err := fixture.authenticator.VerifyAndLogin(fixture.loginRequest(t))
	assert.ErrorIs(t, err, ErrCertificateInvalid)
}

func TestVerifyAndLoginWrongKey(t *testing.T) {
	fixture := newLoginFixture(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	req := fixture.loginRequest(t)
	digest := sha256.Sum256([]byte(req.Challenge))
	sig, err := rsa.SignPKCS1v15(rand.Reader, otherKey, crypto.SHA256, digest[:])
	require.NoError(t, err)
	req.Signature = base64.StdEncoding.EncodeToString(sig)

	_, err = fixture.authenticator.VerifyAndLogin(req)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
