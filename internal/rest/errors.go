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

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-certauth/pkg/auth"
	"github.com/jeremyhahn/go-certauth/pkg/ca"
	"github.com/jeremyhahn/go-certauth/pkg/registry"
	"github.com/jeremyhahn/go-certauth/pkg/storage"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")

	// ErrAuthenticationFailed is the single opaque error returned for
	// every login trust failure. The actual reason stays server-side.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// writeErrorWithMessage writes an error response with a custom message.
func writeErrorWithMessage(w http.ResponseWriter, err error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// isTrustFailure reports whether err is one of the login trust-failure
// sentinels that must be collapsed into ErrAuthenticationFailed.
func isTrustFailure(err error) bool {
	return errors.Is(err, auth.ErrChallengeExpired) ||
		errors.Is(err, auth.ErrInvalidSignature) ||
		errors.Is(err, auth.ErrCertificateInvalid) ||
		errors.Is(err, auth.ErrUserNotFound)
}

// mapErrorToStatusCode maps errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, registry.ErrCertNotFound),
		errors.Is(err, registry.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ca.ErrInvalidSubject),
		errors.Is(err, ca.ErrInvalidValidity):
		return http.StatusBadRequest
	case errors.Is(err, ca.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, registry.ErrSerialExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps the error to a status code and writes the response.
func handleError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	writeError(w, err, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
		writeError(w, err, http.StatusInternalServerError)
	}
}

// writeOAuth2Error writes an RFC 6749 style error body.
func writeOAuth2Error(w http.ResponseWriter, errCode string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(OAuth2ErrorResponse{Error: errCode}); err != nil {
		log.Printf("Failed to encode OAuth2 error response: %v", err)
	}
}
