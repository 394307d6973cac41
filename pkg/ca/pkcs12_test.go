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

package ca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackagePKCS12(t *testing.T) {
	root, intermediate := testChain(t)
	factory := NewFactory()

	issued, err := factory.IssueUserCertificate(UserCertificateRequest{
		Subject: SubjectFields{CommonName: "carol"},
	}, intermediate.Certificate, intermediate.PrivateKey)
	require.NoError(t, err)

	t.Run("round-trips with the right password", func(t *testing.T) {
		bundle, err := factory.PackagePKCS12(issued.CertificatePEM, issued.PrivateKeyPEM, "secret",
			intermediate.Certificate, root.Certificate)
		require.NoError(t, err)
		require.NotEmpty(t, bundle)

		cert, key, err := UnpackPKCS12(bundle, "secret")
		require.NoError(t, err)
		assert.Equal(t, issued.Certificate.SerialNumber, cert.SerialNumber)
		assert.Equal(t, issued.PrivateKey.D, key.D)
	})

	t.Run("wrong password fails", func(t *testing.T) {
		bundle, err := factory.PackagePKCS12(issued.CertificatePEM, issued.PrivateKeyPEM, "secret")
		require.NoError(t, err)

		_, _, err = UnpackPKCS12(bundle, "wrong")
		assert.Error(t, err)
	})

	t.Run("modern encoder round-trips", func(t *testing.T) {
		modern := NewFactory(WithModernPKCS12())
		bundle, err := modern.PackagePKCS12(issued.CertificatePEM, issued.PrivateKeyPEM, "secret",
			intermediate.Certificate)
		require.NoError(t, err)

		cert, _, err := UnpackPKCS12(bundle, "secret")
		require.NoError(t, err)
		assert.Equal(t, issued.Certificate.SerialNumber, cert.SerialNumber)
	})

	t.Run("rejects malformed key material", func(t *testing.T) {
		_, err := factory.PackagePKCS12(issued.CertificatePEM, []byte("junk"), "secret")
		assert.Error(t, err)
	})
}
