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
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-certauth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-certauth/pkg/encoding"
	"github.com/jeremyhahn/go-certauth/pkg/metrics"
	"github.com/jeremyhahn/go-certauth/pkg/oauth2"
	"github.com/jeremyhahn/go-certauth/pkg/registry"
)

// LoginRequest is one authentication attempt: a signed challenge plus
// the OAuth2 parameters the resulting code should be bound to. There is
// deliberately no password field anywhere in this flow; the Agent keeps
// the key-unlock password on the user's machine.
type LoginRequest struct {
	Challenge           string
	Signature           string // base64 RSA PKCS#1 v1.5 over SHA-256 of the challenge bytes
	SerialNumber        string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Authenticator verifies challenge signatures and binds verified logins
// to authorization codes.
type Authenticator struct {
	challenges *ChallengeIssuer
	registry   *registry.Registry
	codes      *oauth2.Service
	logger     logger.Logger
	now        func() time.Time
}

// AuthenticatorConfig wires the authenticator's collaborators.
type AuthenticatorConfig struct {
	Challenges *ChallengeIssuer
	Registry   *registry.Registry
	OAuth2     *oauth2.Service
	Logger     logger.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg *AuthenticatorConfig) (*Authenticator, error) {
	if cfg == nil || cfg.Challenges == nil || cfg.Registry == nil || cfg.OAuth2 == nil {
		return nil, fmt.Errorf("auth: challenges, registry and oauth2 service are required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{Level: logger.LevelInfo})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Authenticator{
		challenges: cfg.Challenges,
		registry:   cfg.Registry,
		codes:      cfg.OAuth2,
		logger:     log,
		now:        now,
	}, nil
}

// VerifyAndLogin runs one authentication attempt to completion:
//
//  1. consume the challenge (reject consumed/expired/unknown)
//  2. look up the certificate registered under the claimed serial
//     (reject unknown, revoked, or outside validity)
//  3. verify the signature of the challenge bytes against the
//     certificate's public key
//  4. resolve the owning user
//  5. mint an authorization code bound to the supplied OAuth2 params
//
// Step 3 is the only point that establishes possession of the private
// key; everything else is bookkeeping around that one fact. Callers
// must surface any returned error opaquely.
func (a *Authenticator) VerifyAndLogin(req *LoginRequest) (*oauth2.AuthorizationCode, error) {
	// The challenge burns first, even if everything after fails. Replay
	// of a failed attempt is the attack this ordering defends against.
	switch a.challenges.Consume(req.Challenge) {
	case ConsumeOK:
	case ConsumeExpired:
		return nil, a.fail("challenge_expired", req.SerialNumber, ErrChallengeExpired)
	case ConsumeAlreadyUsed:
		return nil, a.fail("challenge_reused", req.SerialNumber, ErrChallengeExpired)
	default:
		return nil, a.fail("challenge_unknown", req.SerialNumber, ErrChallengeExpired)
	}

	record, err := a.registry.Get(req.SerialNumber)
	if err != nil {
		if errors.Is(err, registry.ErrCertNotFound) {
			return nil, a.fail("serial_unknown", req.SerialNumber, ErrCertificateInvalid)
		}
		return nil, err
	}

	if record.Revoked {
		return nil, a.fail("cert_revoked", req.SerialNumber, ErrCertificateInvalid)
	}

	now := a.now()
	if now.Before(record.NotBefore) || now.After(record.NotAfter) {
		return nil, a.fail("cert_expired", req.SerialNumber, ErrCertificateInvalid)
	}

	cert, err := encoding.DecodeCertificatePEM(record.CertificatePEM)
	if err != nil {
		return nil, fmt.Errorf("auth: corrupt certificate for serial %s: %w", req.SerialNumber, err)
	}

	if err := verifySignature(cert, req.Challenge, req.Signature); err != nil {
		return nil, a.fail("bad_signature", req.SerialNumber, ErrInvalidSignature)
	}

	user, err := a.registry.UserBySerial(req.SerialNumber)
	if err != nil {
		return nil, a.fail("user_unknown", req.SerialNumber, ErrUserNotFound)
	}

	code, err := a.codes.IssueCode(oauth2.IssueCodeParams{
		UserID:              user.ID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordOperation(metrics.OpLogin, metrics.StatusSuccess)
	a.logger.Info("login verified",
		logger.String("serial_number", req.SerialNumber),
		logger.String("user_id", user.ID),
		logger.String("client_id", req.ClientID))

	return code, nil
}

// fail records the internal failure reason in logs and metrics and
// returns the sentinel the REST layer will collapse into an opaque
// authentication failure.
func (a *Authenticator) fail(reason, serialNumber string, err error) error {
	metrics.RecordOperation(metrics.OpLogin, metrics.StatusError)
	metrics.RecordLoginFailure(reason)
	a.logger.Warn("login rejected",
		logger.String("reason", reason),
		logger.String("serial_number", serialNumber))
	return err
}

// verifySignature checks a base64 RSA PKCS#1 v1.5 signature over the
// SHA-256 digest of the challenge bytes.
func verifySignature(cert *x509.Certificate, challenge, signature string) error {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate key is %T", ErrInvalidSignature, cert.PublicKey)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	digest := sha256.Sum256([]byte(challenge))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}

	return nil
}
