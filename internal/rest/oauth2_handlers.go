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
	"errors"
	"net/http"
	"net/url"

	"github.com/jeremyhahn/go-certauth/pkg/metrics"
	"github.com/jeremyhahn/go-certauth/pkg/oauth2"
)

// AuthorizeHandler handles GET /oauth2/authorize requests. The
// authorization endpoint has no credential prompt of its own; after
// validating the request it sends the browser to the certificate login
// surface with the original query preserved.
func (h *HandlerContext) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")

	if clientID == "" || redirectURI == "" {
		writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	// An unknown client or unregistered redirect target must never be
	// redirected to (RFC 6749 section 3.1.2.4).
	if err := h.oauth2.ValidateAuthorization(clientID, redirectURI); err != nil {
		writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	if responseType := query.Get("response_type"); responseType != "" && responseType != "code" {
		redirectWithError(w, r, redirectURI, "unsupported_response_type", query.Get("state"))
		return
	}
	if method := query.Get("code_challenge_method"); method != "" && method != oauth2.CodeChallengeMethodS256 {
		redirectWithError(w, r, redirectURI, "invalid_request", query.Get("state"))
		return
	}

	http.Redirect(w, r, "/login?"+query.Encode(), http.StatusFound)
}

// redirectWithError sends the browser back to a validated redirect
// target with an RFC 6749 error code and the caller's state.
func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, errCode, state string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	query := target.Query()
	query.Set("error", errCode)
	if state != "" {
		query.Set("state", state)
	}
	target.RawQuery = query.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// TokenHandler handles POST /oauth2/token requests. Requests are
// form-encoded per RFC 6749; client credentials may arrive as form
// fields or HTTP basic auth.
func (h *HandlerContext) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	clientID := r.PostForm.Get("client_id")
	clientSecret := r.PostForm.Get("client_secret")
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		clientID = basicID
		clientSecret = basicSecret
	}

	var (
		pair *oauth2.TokenPair
		err  error
	)

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		pair, err = h.oauth2.Exchange(oauth2.ExchangeParams{
			Code:         r.PostForm.Get("code"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
		})
	case "refresh_token":
		pair, err = h.oauth2.Refresh(r.PostForm.Get("refresh_token"), clientID)
	default:
		writeOAuth2Error(w, "unsupported_grant_type", http.StatusBadRequest)
		return
	}

	if err != nil {
		metrics.RecordOperation(metrics.OpExchange, metrics.StatusError)
		switch {
		case errors.Is(err, oauth2.ErrInvalidClient):
			writeOAuth2Error(w, "invalid_client", http.StatusUnauthorized)
		case errors.Is(err, oauth2.ErrInvalidGrant):
			writeOAuth2Error(w, "invalid_grant", http.StatusBadRequest)
		case errors.Is(err, oauth2.ErrInvalidRequest):
			writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		default:
			writeOAuth2Error(w, "server_error", http.StatusInternalServerError)
		}
		return
	}

	metrics.RecordOperation(metrics.OpExchange, metrics.StatusSuccess)

	// Token responses must not be cached (RFC 6749 §5.1).
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, pair, http.StatusOK)
}

// IntrospectHandler handles POST /oauth2/introspect requests. Unknown
// or dead tokens produce {"active": false}, never an error.
func (h *HandlerContext) IntrospectHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	metrics.RecordOperation(metrics.OpIntrospect, metrics.StatusSuccess)
	writeJSON(w, h.oauth2.Introspect(r.PostForm.Get("token")), http.StatusOK)
}

// RevokeHandler handles POST /oauth2/revoke requests. Revocation is
// idempotent and succeeds even for unknown tokens (RFC 7009).
func (h *HandlerContext) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuth2Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	h.oauth2.Revoke(r.PostForm.Get("token"))
	metrics.RecordOperation(metrics.OpRevoke, metrics.StatusSuccess)
	w.WriteHeader(http.StatusOK)
}
