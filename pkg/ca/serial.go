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
	"fmt"
	"math/big"
	"strings"
)

// serialBytes is the number of random bytes in a serial number.
// 128 bits makes collisions statistically negligible; the certificate
// registry still enforces uniqueness when an issued serial is registered.
const serialBytes = 16

// GenerateSerialNumber returns a random serial number as an uppercase
// hex string. The value is rendered via big.Int so that it round-trips
// exactly with the serial stored in an issued certificate (leading zero
// bytes carry no width).
func GenerateSerialNumber() (string, error) {
	buf := make([]byte, serialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ca: failed to generate serial number: %w", err)
	}
	return strings.ToUpper(new(big.Int).SetBytes(buf).Text(16)), nil
}

// serialToInt converts a hex serial number to the big.Int form x509
// templates require.
func serialToInt(serial string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(serial, 16)
	if !ok {
		return nil, fmt.Errorf("ca: invalid serial number %q", serial)
	}
	return n, nil
}

// SerialFromCertificate renders an x509 serial back into the uppercase
// hex form used throughout the registry.
func SerialFromCertificate(serial *big.Int) string {
	return strings.ToUpper(serial.Text(16))
}
