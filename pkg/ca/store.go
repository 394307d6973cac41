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
	"errors"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-certauth/pkg/encoding"
	"github.com/jeremyhahn/go-certauth/pkg/storage"
)

// Storage keys for CA material. Private keys live under the keys/
// prefix so the file backend writes them with owner-only permissions.
const (
	rootCertKey         = storage.CertPrefix + "root-ca.pem"
	rootKeyKey          = storage.KeyPrefix + "root-ca.pem"
	intermediateCertKey = storage.CertPrefix + "intermediate-ca.pem"
	intermediateKeyKey  = storage.KeyPrefix + "intermediate-ca.pem"
)

// signingMaterial is the cached intermediate pair used for issuance.
type signingMaterial struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// Store persists CA material and serves the intermediate signing pair
// from an in-memory cache. The cache is populated lazily on first use
// and invalidated explicitly on rotation; the intermediate private key
// is the highest-value secret in the system.
type Store struct {
	backend     storage.Backend
	keyPassword []byte

	mu     sync.RWMutex
	cached *signingMaterial
}

// StoreConfig configures a CA Store.
type StoreConfig struct {
	// Backend is the storage backend holding CA material.
	Backend storage.Backend

	// KeyPassword, when set, encrypts CA private keys at rest using
	// PKCS#8 password-based encryption.
	KeyPassword []byte
}

// NewStore creates a CA material store.
func NewStore(cfg *StoreConfig) (*Store, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, fmt.Errorf("ca: storage backend is required")
	}
	return &Store{
		backend:     cfg.Backend,
		keyPassword: cfg.KeyPassword,
	}, nil
}

// Initialized reports whether CA material has been bootstrapped.
func (s *Store) Initialized() (bool, error) {
	return s.backend.Exists(intermediateCertKey)
}

// Load reads the persisted root and intermediate pairs. Returns
// ErrNotInitialized when no material exists so callers can present a
// bootstrap step rather than crash.
func (s *Store) Load() (*CAMaterial, error) {
	root, err := s.loadPair(rootCertKey, rootKeyKey)
	if err != nil {
		return nil, err
	}

	intermediate, err := s.loadPair(intermediateCertKey, intermediateKeyKey)
	if err != nil {
		return nil, err
	}

	return &CAMaterial{
		Root:         root,
		Intermediate: intermediate,
	}, nil
}

// Save persists root and intermediate material and invalidates the
// signing cache. Called by the bootstrap and by rotation; rotation is
// serialized against concurrent readers by the store's lock.
func (s *Store) Save(material *CAMaterial) error {
	if material == nil || material.Root == nil || material.Intermediate == nil {
		return fmt.Errorf("ca: incomplete CA material")
	}

	if err := s.savePair(material.Root, rootCertKey, rootKeyKey); err != nil {
		return err
	}
	if err := s.savePair(material.Intermediate, intermediateCertKey, intermediateKeyKey); err != nil {
		return err
	}

	s.Invalidate()
	return nil
}

// SigningKey returns the intermediate certificate and private key used
// for issuance, served from the in-memory cache. The cache is populated
// once, lazily, and shared across concurrent requests.
func (s *Store) SigningKey() (*x509.Certificate, *rsa.PrivateKey, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()

	if cached != nil {
		return cached.cert, cached.key, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have filled the cache while we waited.
	if s.cached != nil {
		return s.cached.cert, s.cached.key, nil
	}

	intermediate, err := s.loadPair(intermediateCertKey, intermediateKeyKey)
	if err != nil {
		return nil, nil, err
	}

	s.cached = &signingMaterial{
		cert: intermediate.Certificate,
		key:  intermediate.PrivateKey,
	}

	return s.cached.cert, s.cached.key, nil
}

// Invalidate drops the cached signing material. The next SigningKey
// call reloads it from storage.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// loadPair reads a certificate/key pair from storage and reconstructs
// an IssuedCertificate.
func (s *Store) loadPair(certKey, keyKey string) (*IssuedCertificate, error) {
	certPEM, err := s.backend.Get(certKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("ca: failed to load certificate: %w", err)
	}

	keyPEM, err := s.backend.Get(keyKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("ca: failed to load private key: %w", err)
	}

	cert, err := encoding.DecodeCertificatePEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPEM, err)
	}

	key, err := encoding.DecodePrivateKeyPEM(keyPEM, s.keyPassword)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to decode private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	commonName, err := FromPortableName(cert.Subject.CommonName)
	if err != nil {
		return nil, err
	}

	pubPEM, err := encoding.EncodePublicKeyPEM(&rsaKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to encode public key: %w", err)
	}

	return &IssuedCertificate{
		SerialNumber:   SerialFromCertificate(cert.SerialNumber),
		SubjectDN:      BuildSubjectDN(subjectFromName(cert.Subject)),
		IssuerDN:       BuildSubjectDN(subjectFromName(cert.Issuer)),
		CommonName:     commonName,
		NotBefore:      cert.NotBefore,
		NotAfter:       cert.NotAfter,
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		PublicKeyPEM:   pubPEM,
		Certificate:    cert,
		PrivateKey:     rsaKey,
	}, nil
}

// savePair writes a certificate/key pair to storage, encrypting the
// private key when a key password is configured.
func (s *Store) savePair(issued *IssuedCertificate, certKey, keyKey string) error {
	if err := s.backend.Put(certKey, issued.CertificatePEM, nil); err != nil {
		return fmt.Errorf("ca: failed to persist certificate: %w", err)
	}

	keyPEM := issued.PrivateKeyPEM
	if len(s.keyPassword) > 0 {
		encrypted, err := encoding.EncodePrivateKeyPEM(issued.PrivateKey, x509.RSA, s.keyPassword)
		if err != nil {
			return fmt.Errorf("ca: failed to encrypt private key: %w", err)
		}
		keyPEM = encrypted
	}

	if err := s.backend.Put(keyKey, keyPEM, nil); err != nil {
		return fmt.Errorf("ca: failed to persist private key: %w", err)
	}

	return nil
}
