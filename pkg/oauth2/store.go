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
	"sync"
	"time"
)

// codeStore holds pending authorization codes. Consumption is
// consume-then-check: the used flag flips under the lock before any
// caller-visible validation happens, so two concurrent redemptions of
// the same code cannot both succeed.
type codeStore struct {
	mu    sync.Mutex
	codes map[string]*AuthorizationCode
	now   func() time.Time
}

func newCodeStore(now func() time.Time) *codeStore {
	return &codeStore{
		codes: make(map[string]*AuthorizationCode),
		now:   now,
	}
}

// put stores a freshly minted code and sweeps expired entries.
func (s *codeStore) put(code *AuthorizationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for value, existing := range s.codes {
		if now.After(existing.ExpiresAt) {
			delete(s.codes, value)
		}
	}

	s.codes[code.Code] = code
}

// consume atomically marks the code used and returns a copy of its
// state at consumption time. Returns nil when the code is unknown,
// already used, or expired.
func (s *codeStore) consume(value string) *AuthorizationCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[value]
	if !ok || code.Used {
		return nil
	}

	code.Used = true

	if s.now().After(code.ExpiresAt) {
		return nil
	}

	copied := *code
	return &copied
}

// tokenRecord tracks an issued access or refresh token.
type tokenRecord struct {
	userID    string
	clientID  string
	scope     string
	tokenType string
	expiresAt time.Time
	revoked   bool
}

// tokenStore indexes issued tokens for introspection and revocation.
// Access tokens are indexed by their JWT ID; refresh tokens by their
// opaque value.
type tokenStore struct {
	mu      sync.Mutex
	records map[string]*tokenRecord
	now     func() time.Time
}

func newTokenStore(now func() time.Time) *tokenStore {
	return &tokenStore{
		records: make(map[string]*tokenRecord),
		now:     now,
	}
}

func (s *tokenStore) put(id string, record *tokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, existing := range s.records {
		if now.After(existing.expiresAt) {
			delete(s.records, key)
		}
	}

	s.records[id] = record
}

// get returns the live record for id, or nil when unknown, expired or
// revoked.
func (s *tokenStore) get(id string) *tokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.revoked || s.now().After(record.expiresAt) {
		return nil
	}

	copied := *record
	return &copied
}

// revoke marks the record revoked. Idempotent; unknown ids are a no-op.
func (s *tokenStore) revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok {
		record.revoked = true
	}
}

// consumeRefresh atomically invalidates a refresh token and returns its
// record, or nil when it is not live. Refresh tokens rotate on use.
func (s *tokenStore) consumeRefresh(id string) *tokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.revoked || s.now().After(record.expiresAt) {
		return nil
	}

	record.revoked = true
	copied := *record
	return &copied
}
