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

import "errors"

var (
	// ErrNotInitialized is returned by Store.Load when no CA material
	// exists yet. This is a recoverable condition: the operator must run
	// the bootstrap, it is not a crash.
	ErrNotInitialized = errors.New("ca: not initialized")

	// ErrInvalidSubject is returned when a subject has no common name.
	ErrInvalidSubject = errors.New("ca: invalid subject")

	// ErrInvalidValidity is returned when a validity period is zero or negative.
	ErrInvalidValidity = errors.New("ca: invalid validity period")

	// ErrMalformedPEM is returned when certificate or key input cannot
	// be decoded as PEM even after normalization.
	ErrMalformedPEM = errors.New("ca: malformed PEM input")

	// ErrUnsupportedKey is returned when key material is not an RSA key
	// in a format the factory can package.
	ErrUnsupportedKey = errors.New("ca: unsupported key format")

	// ErrNotPortable is returned when a portable name cannot be decoded.
	ErrNotPortable = errors.New("ca: invalid portable name encoding")
)
