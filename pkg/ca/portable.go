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
	"encoding/base32"
	"fmt"
	"strings"
)

// PortablePrefix tags a transcoded subject name. The remainder is the
// unpadded base32 encoding of the raw UTF-8 bytes, which keeps the
// value inside the PrintableString character set.
const PortablePrefix = "b32-"

var portableEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ToPortableName returns an ASCII-safe form of raw suitable for a
// certificate subject common name. ASCII input passes through
// unchanged; anything else (or input that would collide with the
// portable prefix) is tagged and base32-encoded.
//
// FromPortableName(ToPortableName(x)) == x for all x.
func ToPortableName(raw string) string {
	if isASCII(raw) && !strings.HasPrefix(raw, PortablePrefix) {
		return raw
	}
	return PortablePrefix + portableEncoding.EncodeToString([]byte(raw))
}

// FromPortableName reverses ToPortableName. Values without the portable
// prefix are returned unchanged.
func FromPortableName(portable string) (string, error) {
	if !strings.HasPrefix(portable, PortablePrefix) {
		return portable, nil
	}

	raw, err := portableEncoding.DecodeString(strings.TrimPrefix(portable, PortablePrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotPortable, err)
	}

	return string(raw), nil
}

// isASCII reports whether s contains only 7-bit characters.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
