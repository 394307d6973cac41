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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/jeremyhahn/go-certauth/pkg/encoding"
)

// Factory issues root, intermediate and end-entity certificates.
//
// Key generation for CA material is 4096-bit RSA and can take seconds;
// callers on a latency-sensitive request path should run issuance on a
// background worker.
type Factory struct {
	p12Encoder *pkcs12.Encoder
}

// Option configures a Factory.
type Option func(*Factory)

// WithModernPKCS12 switches PKCS#12 packaging to the modern AES-256
// encoder. The default is the legacy encoder for compatibility with
// older verifying clients; confirm with stakeholders before enabling.
func WithModernPKCS12() Option {
	return func(f *Factory) {
		f.p12Encoder = pkcs12.Modern2023
	}
}

// NewFactory creates a certificate factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		p12Encoder: pkcs12.LegacyDES,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IssueRootCA creates a self-signed root CA certificate with a 4096-bit
// key. Used only at bootstrap.
func (f *Factory) IssueRootCA(subject SubjectFields, validityYears int) (*IssuedCertificate, error) {
	if err := validateIssuance(subject, validityYears); err != nil {
		return nil, err
	}

	key, err := rsa.GenerateKey(rand.Reader, CAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to generate root key: %w", err)
	}

	template, serial, err := caTemplate(subject, validityYears)
	if err != nil {
		return nil, err
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to create root certificate: %w", err)
	}

	return f.assemble(der, serial, subject.CommonName, key)
}

// IssueIntermediateCA creates an intermediate CA signed by the root.
// The intermediate carries pathLenConstraint=0 so it cannot issue
// further CAs.
func (f *Factory) IssueIntermediateCA(subject SubjectFields, rootCert *x509.Certificate, rootKey *rsa.PrivateKey, validityYears int) (*IssuedCertificate, error) {
	if err := validateIssuance(subject, validityYears); err != nil {
		return nil, err
	}
	if rootCert == nil || rootKey == nil {
		return nil, fmt.Errorf("%w: missing root material", ErrNotInitialized)
	}

	key, err := rsa.GenerateKey(rand.Reader, CAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to generate intermediate key: %w", err)
	}

	template, serial, err := caTemplate(subject, validityYears)
	if err != nil {
		return nil, err
	}
	template.MaxPathLen = 0
	template.MaxPathLenZero = true

	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, &key.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to create intermediate certificate: %w", err)
	}

	return f.assemble(der, serial, subject.CommonName, key)
}

// IssueUserCertificate creates an end-entity certificate signed by the
// given CA. The subject common name is transcoded to its portable form
// before it enters the certificate; the raw value is retained on the
// returned IssuedCertificate.
func (f *Factory) IssueUserCertificate(req UserCertificateRequest, caCert *x509.Certificate, caKey *rsa.PrivateKey) (*IssuedCertificate, error) {
	years := req.ValidityYears
	if years == 0 {
		years = DefaultUserValidityYears
	}
	if err := validateIssuance(req.Subject, years); err != nil {
		return nil, err
	}
	if caCert == nil || caKey == nil {
		return nil, fmt.Errorf("%w: missing signing material", ErrNotInitialized)
	}

	key, err := rsa.GenerateKey(rand.Reader, UserKeyBits)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to generate user key: %w", err)
	}

	serial, err := GenerateSerialNumber()
	if err != nil {
		return nil, err
	}
	serialInt, err := serialToInt(serial)
	if err != nil {
		return nil, err
	}

	portableSubject := req.Subject
	portableSubject.CommonName = ToPortableName(req.Subject.CommonName)

	notBefore := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialInt,
		Subject:      pkixName(portableSubject),
		NotBefore:    notBefore,
		NotAfter:     notBefore.AddDate(years, 0, 0),
		KeyUsage: x509.KeyUsageDigitalSignature |
			x509.KeyUsageContentCommitment |
			x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageClientAuth,
			x509.ExtKeyUsageEmailProtection,
		},
		BasicConstraintsValid: true,
	}

	if req.Email != "" {
		template.EmailAddresses = []string{req.Email}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to create user certificate: %w", err)
	}

	return f.assemble(der, serial, req.Subject.CommonName, key)
}

// ParseCertificate parses normalized PEM input into a CertificateInfo.
// It is pure and side-effect-free; used at issuance to echo back issued
// fields and at authentication to resolve issuer and validity.
func (f *Factory) ParseCertificate(pemData []byte) (*CertificateInfo, error) {
	cert, err := encoding.DecodeCertificatePEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPEM, err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, cert.PublicKey)
	}

	commonName, err := FromPortableName(cert.Subject.CommonName)
	if err != nil {
		return nil, err
	}

	return &CertificateInfo{
		SerialNumber: SerialFromCertificate(cert.SerialNumber),
		SubjectDN:    BuildSubjectDN(subjectFromName(cert.Subject)),
		IssuerDN:     BuildSubjectDN(subjectFromName(cert.Issuer)),
		CommonName:   commonName,
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		PublicKey:    pub,
	}, nil
}

// caTemplate builds the shared portion of a CA certificate template.
func caTemplate(subject SubjectFields, validityYears int) (*x509.Certificate, string, error) {
	serial, err := GenerateSerialNumber()
	if err != nil {
		return nil, "", err
	}
	serialInt, err := serialToInt(serial)
	if err != nil {
		return nil, "", err
	}

	notBefore := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serialInt,
		Subject:               pkixName(subject),
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(validityYears, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	return template, serial, nil
}

// assemble parses the freshly created DER certificate and bundles it
// with its key material into an IssuedCertificate.
func (f *Factory) assemble(der []byte, serial, commonName string, key *rsa.PrivateKey) (*IssuedCertificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to parse issued certificate: %w", err)
	}

	certPEM, err := encoding.EncodeCertificatePEM(cert)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to encode certificate: %w", err)
	}

	keyPEM, err := encoding.EncodePrivateKeyPEM(key, x509.RSA, nil)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to encode private key: %w", err)
	}

	pubPEM, err := encoding.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to encode public key: %w", err)
	}

	return &IssuedCertificate{
		SerialNumber:   serial,
		SubjectDN:      BuildSubjectDN(subjectFromName(cert.Subject)),
		IssuerDN:       BuildSubjectDN(subjectFromName(cert.Issuer)),
		CommonName:     commonName,
		NotBefore:      cert.NotBefore,
		NotAfter:       cert.NotAfter,
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		PublicKeyPEM:   pubPEM,
		Certificate:    cert,
		PrivateKey:     key,
	}, nil
}

// validateIssuance rejects issuance requests before any key generation
// starts.
func validateIssuance(subject SubjectFields, validityYears int) error {
	if subject.CommonName == "" {
		return fmt.Errorf("%w: common name is required", ErrInvalidSubject)
	}
	if validityYears <= 0 {
		return fmt.Errorf("%w: %d years", ErrInvalidValidity, validityYears)
	}
	return nil
}
