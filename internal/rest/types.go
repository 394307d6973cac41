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

package rest

import "time"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// IssueCertificateRequest asks for a new user certificate. The password
// protects the returned PKCS#12 bundle only; it is used inside the
// handler and never stored.
type IssueCertificateRequest struct {
	CommonName    string `json:"common_name"`
	Email         string `json:"email,omitempty"`
	Organization  string `json:"organization,omitempty"`
	Country       string `json:"country,omitempty"`
	ValidityYears int    `json:"validity_years,omitempty"`
	Password      string `json:"password"`

	// UserID binds the certificate to an existing user. When empty a
	// new user is created from CommonName and Email.
	UserID string `json:"user_id,omitempty"`
}

// IssueCertificateResponse returns the issued certificate and the
// PKCS#12 bundle the browser hands to the Agent.
type IssueCertificateResponse struct {
	UserID       string    `json:"user_id"`
	SerialNumber string    `json:"serial_number"`
	SubjectDN    string    `json:"subject_dn"`
	IssuerDN     string    `json:"issuer_dn"`
	CommonName   string    `json:"common_name"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	PublicKeyPEM string    `json:"public_key_pem"`
	P12Base64    string    `json:"p12_base64"`
}

// CertificateEntry is one registry record in list responses.
type CertificateEntry struct {
	SerialNumber string    `json:"serial_number"`
	CommonName   string    `json:"common_name"`
	SubjectDN    string    `json:"subject_dn"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	Revoked      bool      `json:"revoked"`
}

// ListCertificatesResponse lists a user's certificates, newest first.
type ListCertificatesResponse struct {
	Certificates []CertificateEntry `json:"certificates"`
}

// RevokeCertificateResponse acknowledges a revocation.
type RevokeCertificateResponse struct {
	SerialNumber string `json:"serial_number"`
	Revoked      bool   `json:"revoked"`
}

// ChallengeResponse carries a fresh login challenge.
type ChallengeResponse struct {
	Challenge string    `json:"challenge"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the browser's signed-challenge submission. State is
// opaque to the server and echoed back for the cross-window handshake.
type LoginRequest struct {
	Challenge           string `json:"challenge"`
	Signature           string `json:"signature"`
	SerialNumber        string `json:"serial_number"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope,omitempty"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// LoginResponse returns the authorization code for a verified login.
type LoginResponse struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// UserinfoResponse is the bearer-protected identity view.
type UserinfoResponse struct {
	Subject     string           `json:"sub"`
	Name        string           `json:"name"`
	Email       string           `json:"email,omitempty"`
	Certificate *CertificateEntry `json:"certificate,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// OAuth2ErrorResponse is the RFC 6749 error body for the token
// endpoints.
type OAuth2ErrorResponse struct {
	Error string `json:"error"`
}
