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

import "errors"

// Trust-failure sentinels. The REST layer collapses all of these into
// one opaque authentication failure; the specific kind is only for
// server-side logs and metrics, never for the browser.
var (
	// ErrChallengeExpired is returned when a challenge is expired,
	// already consumed, or unknown.
	ErrChallengeExpired = errors.New("auth: challenge expired or already used")

	// ErrInvalidSignature is returned when the signature does not verify
	// against the certificate registered for the claimed serial number.
	ErrInvalidSignature = errors.New("auth: invalid signature")

	// ErrCertificateInvalid is returned when the claimed certificate is
	// unknown, revoked, or outside its validity window.
	ErrCertificateInvalid = errors.New("auth: certificate invalid")

	// ErrUserNotFound is returned when no user owns the certificate.
	ErrUserNotFound = errors.New("auth: user not found")
)
