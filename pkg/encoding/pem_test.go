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

package encoding

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func testCertificate(t *testing.T, key *rsa.PrivateKey) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "encoding-test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestNormalizePEM(t *testing.T) {
	canonical := "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"

	tests := []struct {
		name  string
		input string
	}{
		{"already normalized", canonical},
		{"crlf endings", "-----BEGIN CERTIFICATE-----\r\nAAAA\r\n-----END CERTIFICATE-----\r\n"},
		{"bare cr endings", "-----BEGIN CERTIFICATE-----\rAAAA\r-----END CERTIFICATE-----\r"},
		{"indented lines", "  -----BEGIN CERTIFICATE-----  \n  AAAA\n-----END CERTIFICATE-----\n\n"},
		{"blank interior lines", "-----BEGIN CERTIFICATE-----\n\nAAAA\n\n-----END CERTIFICATE-----\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, canonical, string(NormalizePEM([]byte(tt.input))))
		})
	}

	assert.Empty(t, NormalizePEM(nil))
}

func TestCertificatePEMRoundTrip(t *testing.T) {
	key := testKey(t)
	cert := testCertificate(t, key)

	pemData, err := EncodeCertificatePEM(cert)
	require.NoError(t, err)
	assert.Contains(t, string(pemData), PEMTypeCertificate)

	decoded, err := DecodeCertificatePEM(pemData)
	require.NoError(t, err)
	assert.Equal(t, cert.SerialNumber, decoded.SerialNumber)
	assert.Equal(t, "encoding-test", decoded.Subject.CommonName)

	t.Run("crlf input accepted", func(t *testing.T) {
		crlf := strings.ReplaceAll(string(pemData), "\n", "\r\n")
		decoded, err := DecodeCertificatePEM([]byte(crlf))
		require.NoError(t, err)
		assert.Equal(t, cert.SerialNumber, decoded.SerialNumber)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := DecodeCertificatePEM(nil)
		assert.ErrorIs(t, err, ErrInvalidData)

		_, err = DecodeCertificatePEM([]byte("not pem at all"))
		assert.ErrorIs(t, err, ErrInvalidPEMEncoding)
	})

	_, err = EncodeCertificatePEM(nil)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key := testKey(t)

	t.Run("unencrypted", func(t *testing.T) {
		pemData, err := EncodePrivateKeyPEM(key, x509.RSA, nil)
		require.NoError(t, err)
		assert.Contains(t, string(pemData), PEMTypeRSAPrivateKey)

		decoded, err := DecodePrivateKeyPEM(pemData, nil)
		require.NoError(t, err)

		rsaKey, ok := decoded.(*rsa.PrivateKey)
		require.True(t, ok)
		assert.Equal(t, 0, key.D.Cmp(rsaKey.D))
	})

	t.Run("encrypted", func(t *testing.T) {
		password := []byte("key-password")
		pemData, err := EncodePrivateKeyPEM(key, x509.RSA, password)
		require.NoError(t, err)
		assert.Contains(t, string(pemData), PEMTypeEncryptedPrivateKey)

		decoded, err := DecodePrivateKeyPEM(pemData, password)
		require.NoError(t, err)

		rsaKey, ok := decoded.(*rsa.PrivateKey)
		require.True(t, ok)
		assert.Equal(t, 0, key.D.Cmp(rsaKey.D))
	})

	t.Run("wrong password", func(t *testing.T) {
		pemData, err := EncodePrivateKeyPEM(key, x509.RSA, []byte("right"))
		require.NoError(t, err)

		_, err = DecodePrivateKeyPEM(pemData, []byte("wrong"))
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := EncodePrivateKeyPEM(nil, x509.RSA, nil)
		assert.ErrorIs(t, err, ErrInvalidPrivateKey)
	})
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key := testKey(t)

	pemData, err := EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	assert.Contains(t, string(pemData), PEMTypePublicKey)

	decoded, err := DecodePublicKeyPEM(pemData)
	require.NoError(t, err)

	rsaPub, ok := decoded.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 0, key.PublicKey.N.Cmp(rsaPub.N))

	_, err = EncodePublicKeyPEM(nil)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestPKCS8(t *testing.T) {
	key := testKey(t)

	der, err := EncodePKCS8(key, nil)
	require.NoError(t, err)

	decoded, err := DecodePKCS8(der, nil)
	require.NoError(t, err)

	rsaKey, ok := decoded.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, 0, key.D.Cmp(rsaKey.D))

	_, err = DecodePKCS8(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidData)
}
