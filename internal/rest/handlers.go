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
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jeremyhahn/go-certauth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-certauth/pkg/auth"
	"github.com/jeremyhahn/go-certauth/pkg/ca"
	"github.com/jeremyhahn/go-certauth/pkg/metrics"
	"github.com/jeremyhahn/go-certauth/pkg/oauth2"
	"github.com/jeremyhahn/go-certauth/pkg/registry"
)

// maxIssueAttempts bounds re-issuance when a generated serial number
// collides with one already registered.
const maxIssueAttempts = 3

// HandlerContext holds dependencies for REST handlers.
type HandlerContext struct {
	// Version is the API version
	Version string

	factory       *ca.Factory
	store         *ca.Store
	registry      *registry.Registry
	challenges    *auth.ChallengeIssuer
	authenticator *auth.Authenticator
	oauth2        *oauth2.Service
	logger        logger.Logger
}

// HandlerConfig wires the handler context's collaborators.
type HandlerConfig struct {
	Version       string
	Factory       *ca.Factory
	Store         *ca.Store
	Registry      *registry.Registry
	Challenges    *auth.ChallengeIssuer
	Authenticator *auth.Authenticator
	OAuth2        *oauth2.Service
	Logger        logger.Logger
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(cfg *HandlerConfig) (*HandlerContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("handler config is required")
	}
	if cfg.Factory == nil || cfg.Store == nil || cfg.Registry == nil ||
		cfg.Challenges == nil || cfg.Authenticator == nil || cfg.OAuth2 == nil {
		return nil, fmt.Errorf("all handler dependencies are required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{Level: logger.LevelInfo})
	}

	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	return &HandlerContext{
		Version:       version,
		factory:       cfg.Factory,
		store:         cfg.Store,
		registry:      cfg.Registry,
		challenges:    cfg.Challenges,
		authenticator: cfg.Authenticator,
		oauth2:        cfg.OAuth2,
		logger:        log,
	}, nil
}

// HealthHandler handles GET /health requests.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.Version,
	}
	writeJSON(w, resp, http.StatusOK)
}

// IssueCertificateHandler handles POST /api/v1/certificates requests.
// The password in the request protects the returned PKCS#12 bundle and
// is dropped when the handler returns.
func (h *HandlerContext) IssueCertificateHandler(w http.ResponseWriter, r *http.Request) {
	var req IssueCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	if req.CommonName == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "common_name is required", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "password is required", http.StatusBadRequest)
		return
	}

	caCert, caKey, err := h.store.SigningKey()
	if err != nil {
		metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusError)
		handleError(w, err)
		return
	}

	material, err := h.store.Load()
	if err != nil {
		metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusError)
		handleError(w, err)
		return
	}

	user, created, err := h.resolveUser(&req)
	if err != nil {
		metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusError)
		handleError(w, err)
		return
	}

	certReq := ca.UserCertificateRequest{
		Subject: ca.SubjectFields{
			CommonName:   req.CommonName,
			Organization: req.Organization,
			Country:      req.Country,
		},
		Email:         req.Email,
		ValidityYears: req.ValidityYears,
	}

	issued, err := h.issueAndRegister(certReq, caCert, caKey, user.ID)
	if err != nil {
		metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusError)
		handleError(w, err)
		return
	}

	if created {
		if err := h.registry.SaveUser(user); err != nil {
			metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusError)
			handleError(w, err)
			return
		}
	}

	bundle, err := h.factory.PackagePKCS12(issued.CertificatePEM, issued.PrivateKeyPEM, req.Password,
		material.Intermediate.Certificate, material.Root.Certificate)
	if err != nil {
		metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusError)
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpIssueCert, metrics.StatusSuccess)
	h.logger.Info("certificate issued",
		logger.String("serial_number", issued.SerialNumber),
		logger.String("user_id", user.ID),
		logger.String("common_name", issued.CommonName))

	resp := IssueCertificateResponse{
		UserID:       user.ID,
		SerialNumber: issued.SerialNumber,
		SubjectDN:    issued.SubjectDN,
		IssuerDN:     issued.IssuerDN,
		CommonName:   issued.CommonName,
		NotBefore:    issued.NotBefore,
		NotAfter:     issued.NotAfter,
		PublicKeyPEM: string(issued.PublicKeyPEM),
		P12Base64:    base64.StdEncoding.EncodeToString(bundle),
	}
	writeJSON(w, resp, http.StatusCreated)
}

// resolveUser returns the owner for an issuance request, creating a new
// user when no user_id was supplied.
func (h *HandlerContext) resolveUser(req *IssueCertificateRequest) (*registry.User, bool, error) {
	if req.UserID != "" {
		user, err := h.registry.GetUser(req.UserID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return &registry.User{
		ID:      uuid.NewString(),
		Name:    req.CommonName,
		Email:   req.Email,
		Created: time.Now(),
	}, true, nil
}

// issueAndRegister issues a certificate and records it in the registry,
// re-issuing with a fresh serial on the off chance of a collision.
func (h *HandlerContext) issueAndRegister(req ca.UserCertificateRequest, caCert *x509.Certificate, caKey *rsa.PrivateKey, userID string) (*ca.IssuedCertificate, error) {
	var lastErr error
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		issued, err := h.factory.IssueUserCertificate(req, caCert, caKey)
		if err != nil {
			return nil, err
		}

		record := &registry.Record{
			SerialNumber:   issued.SerialNumber,
			UserID:         userID,
			CommonName:     issued.CommonName,
			SubjectDN:      issued.SubjectDN,
			IssuerDN:       issued.IssuerDN,
			NotBefore:      issued.NotBefore,
			NotAfter:       issued.NotAfter,
			CertificatePEM: issued.CertificatePEM,
		}

		err = h.registry.Register(record)
		if err == nil {
			return issued, nil
		}
		if !errors.Is(err, registry.ErrSerialExists) {
			return nil, err
		}

		lastErr = err
		h.logger.Warn("serial number collision, re-issuing",
			logger.String("serial_number", issued.SerialNumber),
			logger.Int("attempt", attempt+1))
	}

	return nil, lastErr
}

// ListCertificatesHandler handles GET /api/v1/certificates requests.
func (h *HandlerContext) ListCertificatesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "user_id is required", http.StatusBadRequest)
		return
	}

	records, err := h.registry.ListForUser(userID)
	if err != nil {
		handleError(w, err)
		return
	}

	entries := make([]CertificateEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, certificateEntry(record))
	}

	writeJSON(w, ListCertificatesResponse{Certificates: entries}, http.StatusOK)
}

// RevokeCertificateHandler handles POST /api/v1/certificates/{serial}/revoke.
// Revocation is idempotent.
func (h *HandlerContext) RevokeCertificateHandler(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if serial == "" {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	if err := h.registry.Revoke(serial); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("certificate revoked", logger.String("serial_number", serial))
	writeJSON(w, RevokeCertificateResponse{SerialNumber: serial, Revoked: true}, http.StatusOK)
}

// ChallengeHandler handles POST /api/v1/auth/challenge requests.
func (h *HandlerContext) ChallengeHandler(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challenges.Issue()
	if err != nil {
		metrics.RecordOperation(metrics.OpChallenge, metrics.StatusError)
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpChallenge, metrics.StatusSuccess)
	resp := ChallengeResponse{
		Challenge: challenge.Value,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	}
	writeJSON(w, resp, http.StatusOK)
}

// LoginHandler handles POST /api/v1/auth/login requests. Every trust
// failure collapses into the same opaque 401; the internal reason is
// recorded server-side only.
func (h *HandlerContext) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	if req.Challenge == "" || req.Signature == "" || req.SerialNumber == "" ||
		req.ClientID == "" || req.RedirectURI == "" {
		writeErrorWithMessage(w, ErrInvalidRequest,
			"challenge, signature, serial_number, client_id and redirect_uri are required",
			http.StatusBadRequest)
		return
	}

	code, err := h.authenticator.VerifyAndLogin(&auth.LoginRequest{
		Challenge:           req.Challenge,
		Signature:           req.Signature,
		SerialNumber:        req.SerialNumber,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		switch {
		case isTrustFailure(err):
			writeError(w, ErrAuthenticationFailed, http.StatusUnauthorized)
		case errors.Is(err, oauth2.ErrInvalidClient),
			errors.Is(err, oauth2.ErrInvalidRedirectURI),
			errors.Is(err, oauth2.ErrInvalidRequest):
			writeError(w, err, http.StatusBadRequest)
		default:
			handleError(w, err)
		}
		return
	}

	writeJSON(w, LoginResponse{Code: code.Code, State: req.State}, http.StatusOK)
}

// UserinfoHandler handles GET /api/v1/userinfo requests. Requires a
// bearer access token.
func (h *HandlerContext) UserinfoHandler(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	userID, _, err := h.oauth2.Authenticate(token)
	if err != nil {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	user, err := h.registry.GetUser(userID)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := UserinfoResponse{
		Subject: user.ID,
		Name:    user.Name,
		Email:   user.Email,
	}

	if latest, err := h.registry.Latest(user.ID); err == nil {
		entry := certificateEntry(latest)
		resp.Certificate = &entry
	}

	writeJSON(w, resp, http.StatusOK)
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func certificateEntry(record *registry.Record) CertificateEntry {
	return CertificateEntry{
		SerialNumber: record.SerialNumber,
		CommonName:   record.CommonName,
		SubjectDN:    record.SubjectDN,
		NotBefore:    record.NotBefore,
		NotAfter:     record.NotAfter,
		Revoked:      record.Revoked,
	}
}
