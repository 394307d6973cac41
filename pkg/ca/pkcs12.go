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
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/jeremyhahn/go-certauth/pkg/encoding"
)

// PackagePKCS12 encrypts a leaf certificate and its private key into a
// password-protected PKCS#12 container. Any CA certificates supplied are
// embedded as the chain. The password is used here once and never
// persisted; the container is the only issuance artifact that embeds
// the private key.
//
// Malformed PEM and unsupported key material fail loudly with distinct
// error kinds. A corrupt bundle discovered at login is far more costly
// than one rejected at issuance.
func (f *Factory) PackagePKCS12(certPEM, keyPEM []byte, password string, caCerts ...*x509.Certificate) ([]byte, error) {
	cert, err := encoding.DecodeCertificatePEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate: %v", ErrMalformedPEM, err)
	}

	key, err := encoding.DecodePrivateKeyPEM(keyPEM, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrMalformedPEM, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	bundle, err := f.p12Encoder.Encode(rsaKey, cert, caCerts, password)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to encode PKCS#12 bundle: %w", err)
	}

	return bundle, nil
}

// UnpackPKCS12 decrypts a PKCS#12 container with the given password and
// returns the embedded certificate and key. Used by issuance tooling to
// verify a bundle before handing it to the user.
func UnpackPKCS12(bundle []byte, password string) (*x509.Certificate, *rsa.PrivateKey, error) {
	key, cert, _, err := pkcs12.DecodeChain(bundle, password)
	if err != nil {
		return nil, nil, fmt.Errorf("ca: failed to decode PKCS#12 bundle: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	return cert, rsaKey, nil
}
