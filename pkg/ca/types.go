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

// Package ca implements the certificate authority: key generation,
// root/intermediate/user certificate issuance, subject name handling,
// PKCS#12 packaging and persistence of CA signing material.
package ca

import (
	"crypto/rsa"
	"crypto/x509"
	"time"
)

// Key sizes. CA material uses 4096-bit keys; end-entity certificates
// use 2048-bit keys with a short validity instead.
const (
	CAKeyBits   = 4096
	UserKeyBits = 2048

	// DefaultUserValidityYears is the default validity for user
	// certificates when the caller does not specify one.
	DefaultUserValidityYears = 1
)

// SubjectFields carries the Distinguished Name components of a
// certificate subject. Empty fields are omitted from the DN.
type SubjectFields struct {
	CommonName         string
	OrganizationalUnit string
	Organization       string
	Locality           string
	Province           string
	Country            string
}

// UserCertificateRequest describes an end-entity certificate to issue.
type UserCertificateRequest struct {
	Subject SubjectFields

	// Email, when set, is added as an rfc822Name subject alternative name.
	Email string

	// ValidityYears defaults to DefaultUserValidityYears when zero.
	ValidityYears int
}

// IssuedCertificate is the result of a certificate issuance. It is
// immutable after creation.
//
// CommonName holds the authoritative, human-readable subject name. When
// it contains non-ASCII characters the certificate itself carries the
// transcoded portable form (see ToPortableName); the raw value is kept
// here for display and matching and never passes through the
// certificate encoding path.
type IssuedCertificate struct {
	SerialNumber string    `json:"serial_number"`
	SubjectDN    string    `json:"subject_dn"`
	IssuerDN     string    `json:"issuer_dn"`
	CommonName   string    `json:"common_name"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`

	CertificatePEM []byte `json:"certificate_pem"`
	PrivateKeyPEM  []byte `json:"private_key_pem,omitempty"`
	PublicKeyPEM   []byte `json:"public_key_pem"`

	Certificate *x509.Certificate `json:"-"`
	PrivateKey  *rsa.PrivateKey   `json:"-"`
}

// CAMaterial holds the root and intermediate certificate/key pairs.
// The intermediate is signed by the root and constrained to pathlen 0,
// so it cannot issue further CAs.
type CAMaterial struct {
	Root         *IssuedCertificate
	Intermediate *IssuedCertificate
}

// CertificateInfo is the parsed, side-effect-free view of a certificate
// returned by ParseCertificate.
type CertificateInfo struct {
	SerialNumber string        `json:"serial_number"`
	SubjectDN    string        `json:"subject_dn"`
	IssuerDN     string        `json:"issuer_dn"`
	CommonName   string        `json:"common_name"`
	NotBefore    time.Time     `json:"not_before"`
	NotAfter     time.Time     `json:"not_after"`
	PublicKey    *rsa.PublicKey `json:"-"`
}
