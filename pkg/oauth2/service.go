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

package oauth2

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-certauth/pkg/adapters/logger"
)

// Default lifetimes. Codes are deliberately short-lived; a code that
// sat around for a minute is a code that was intercepted.
const (
	DefaultCodeTTL         = 60 * time.Second
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 24 * time.Hour

	tokenTypeAccess  = "access_token"
	tokenTypeRefresh = "refresh_token"
)

// Service implements the authorization-code grant.
type Service struct {
	issuer        string
	signingSecret []byte
	clients       map[string]*Client
	codeTTL       time.Duration
	accessTTL     time.Duration
	refreshTTL    time.Duration
	codes         *codeStore
	tokens        *tokenStore
	logger        logger.Logger
	now           func() time.Time
}

// Config configures the OAuth2 service.
type Config struct {
	// Issuer is the iss claim placed in access tokens.
	Issuer string

	// SigningSecret signs access tokens (HS256).
	SigningSecret []byte

	// Clients is the registered relying applications.
	Clients []*Client

	// CodeTTL is the authorization code lifetime (default 60s).
	CodeTTL time.Duration

	// AccessTokenTTL is the access token lifetime (default 15m).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the refresh token lifetime (default 24h).
	RefreshTokenTTL time.Duration

	// Logger is the logging adapter (optional).
	Logger logger.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewService creates the OAuth2 service.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("oauth2: config is required")
	}
	if len(cfg.SigningSecret) == 0 {
		return nil, fmt.Errorf("oauth2: signing secret is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{Level: logger.LevelInfo})
	}

	clients := make(map[string]*Client, len(cfg.Clients))
	for _, client := range cfg.Clients {
		clients[client.ID] = client
	}

	s := &Service{
		issuer:        cfg.Issuer,
		signingSecret: cfg.SigningSecret,
		clients:       clients,
		codeTTL:       cfg.CodeTTL,
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		codes:         newCodeStore(now),
		tokens:        newTokenStore(now),
		logger:        log,
		now:           now,
	}

	if s.codeTTL == 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.accessTTL == 0 {
		s.accessTTL = DefaultAccessTokenTTL
	}
	if s.refreshTTL == 0 {
		s.refreshTTL = DefaultRefreshTokenTTL
	}

	return s, nil
}

// Client returns the registered client with the given id.
func (s *Service) Client(id string) (*Client, error) {
	client, ok := s.clients[id]
	if !ok {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// ValidateAuthorization checks an authorization request's client and
// redirect target before any user interaction. Callers must not
// redirect the browser anywhere when this fails.
func (s *Service) ValidateAuthorization(clientID, redirectURI string) error {
	client, ok := s.clients[clientID]
	if !ok {
		return ErrInvalidClient
	}
	if !client.allowsRedirect(redirectURI) {
		return ErrInvalidRedirectURI
	}
	return nil
}

// IssueCode mints a single-use authorization code bound to the user,
// client, redirect target and optional PKCE challenge.
func (s *Service) IssueCode(params IssueCodeParams) (*AuthorizationCode, error) {
	client, ok := s.clients[params.ClientID]
	if !ok {
		return nil, ErrInvalidClient
	}
	if !client.allowsRedirect(params.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}
	if params.CodeChallenge != "" &&
		params.CodeChallengeMethod != "" &&
		params.CodeChallengeMethod != CodeChallengeMethodS256 {
		return nil, fmt.Errorf("%w: unsupported code_challenge_method %q",
			ErrInvalidRequest, params.CodeChallengeMethod)
	}
	if client.Public && params.CodeChallenge == "" {
		return nil, fmt.Errorf("%w: public client requires PKCE", ErrInvalidRequest)
	}

	value, err := randomToken()
	if err != nil {
		return nil, err
	}

	method := params.CodeChallengeMethod
	if params.CodeChallenge != "" && method == "" {
		method = CodeChallengeMethodS256
	}

	code := &AuthorizationCode{
		Code:                value,
		UserID:              params.UserID,
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		Scope:               params.Scope,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           s.now().Add(s.codeTTL),
	}

	s.codes.put(code)

	s.logger.Info("authorization code issued",
		logger.String("client_id", params.ClientID),
		logger.String("user_id", params.UserID))

	return code, nil
}

// Exchange redeems an authorization code for an access/refresh token
// pair. The code is burned before any validation; a failed exchange
// requires a fresh login.
func (s *Service) Exchange(params ExchangeParams) (*TokenPair, error) {
	if params.Code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidRequest)
	}

	client, ok := s.clients[params.ClientID]
	if !ok {
		return nil, ErrInvalidClient
	}

	code := s.codes.consume(params.Code)
	if code == nil {
		s.logger.Warn("code redemption failed",
			logger.String("client_id", params.ClientID),
			logger.String("reason", "unknown, expired or reused code"))
		return nil, ErrInvalidGrant
	}

	if code.ClientID != params.ClientID {
		s.logger.Warn("code redemption failed",
			logger.String("client_id", params.ClientID),
			logger.String("reason", "client mismatch"))
		return nil, ErrInvalidGrant
	}

	if code.RedirectURI != params.RedirectURI {
		s.logger.Warn("code redemption failed",
			logger.String("client_id", params.ClientID),
			logger.String("reason", "redirect_uri mismatch"))
		return nil, ErrInvalidGrant
	}

	if code.CodeChallenge != "" {
		if params.CodeVerifier == "" || !VerifyPKCE(code.CodeChallenge, params.CodeVerifier) {
			s.logger.Warn("code redemption failed",
				logger.String("client_id", params.ClientID),
				logger.String("reason", "pkce verification failed"))
			return nil, ErrInvalidGrant
		}
	} else if !client.Public {
		if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(params.ClientSecret)) != 1 {
			s.logger.Warn("code redemption failed",
				logger.String("client_id", params.ClientID),
				logger.String("reason", "client secret mismatch"))
			return nil, ErrInvalidClient
		}
	}

	return s.issueTokens(code.UserID, code.ClientID, code.Scope)
}

// Refresh rotates a refresh token into a new token pair.
func (s *Service) Refresh(refreshToken, clientID string) (*TokenPair, error) {
	if _, ok := s.clients[clientID]; !ok {
		return nil, ErrInvalidClient
	}

	record := s.tokens.consumeRefresh(refreshToken)
	if record == nil || record.clientID != clientID {
		return nil, ErrInvalidGrant
	}

	return s.issueTokens(record.userID, record.clientID, record.scope)
}

// Introspect reports the state of a token. Unknown, expired and revoked
// tokens introspect as inactive; introspection never errors on token
// state and is idempotent.
func (s *Service) Introspect(token string) *Introspection {
	if claims := s.parseAccessToken(token); claims != nil {
		if record := s.tokens.get(claims.ID); record != nil {
			return &Introspection{
				Active:    true,
				Subject:   record.userID,
				ClientID:  record.clientID,
				Scope:     record.scope,
				TokenType: tokenTypeAccess,
				ExpiresAt: record.expiresAt.Unix(),
			}
		}
		return &Introspection{Active: false}
	}

	if record := s.tokens.get(token); record != nil {
		return &Introspection{
			Active:    true,
			Subject:   record.userID,
			ClientID:  record.clientID,
			Scope:     record.scope,
			TokenType: record.tokenType,
			ExpiresAt: record.expiresAt.Unix(),
		}
	}

	return &Introspection{Active: false}
}

// Revoke invalidates a token. Idempotent: revoking an unknown or
// already revoked token succeeds.
func (s *Service) Revoke(token string) {
	if claims := s.parseAccessToken(token); claims != nil {
		s.tokens.revoke(claims.ID)
		return
	}
	s.tokens.revoke(token)
}

// Authenticate validates a bearer access token and returns the subject
// and scope it carries.
func (s *Service) Authenticate(accessToken string) (userID, scope string, err error) {
	claims := s.parseAccessToken(accessToken)
	if claims == nil {
		return "", "", ErrInvalidToken
	}

	record := s.tokens.get(claims.ID)
	if record == nil {
		return "", "", ErrInvalidToken
	}

	return record.userID, record.scope, nil
}

// accessClaims are the registered claims carried by access tokens.
type accessClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// issueTokens mints a JWT access token and an opaque refresh token and
// records both for introspection and revocation.
func (s *Service) issueTokens(userID, clientID, scope string) (*TokenPair, error) {
	now := s.now()
	jti := uuid.NewString()
	accessExpiry := now.Add(s.accessTTL)

	claims := &accessClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			ID:        jti,
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingSecret)
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to sign access token: %w", err)
	}

	refreshToken, err := randomToken()
	if err != nil {
		return nil, err
	}

	s.tokens.put(jti, &tokenRecord{
		userID:    userID,
		clientID:  clientID,
		scope:     scope,
		tokenType: tokenTypeAccess,
		expiresAt: accessExpiry,
	})
	s.tokens.put(refreshToken, &tokenRecord{
		userID:    userID,
		clientID:  clientID,
		scope:     scope,
		tokenType: tokenTypeRefresh,
		expiresAt: now.Add(s.refreshTTL),
	})

	return &TokenPair{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

// parseAccessToken validates a JWT access token and returns its claims,
// or nil when the token is not a valid JWT from this issuer.
func (s *Service) parseAccessToken(token string) *accessClaims {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("oauth2: unexpected signing method %v", t.Header["alg"])
		}
		return s.signingSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil
	}
	return claims
}

// randomToken returns 32 bytes of entropy, base64url-encoded.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth2: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
