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

// Package auth implements the challenge-response login: single-use
// time-bounded challenges, signature verification against registered
// certificates, and the binding of a verified login to an OAuth2
// authorization code.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// DefaultChallengeTTL bounds how long a signed challenge stays
// redeemable. A challenge is bound to nothing else (no session); the
// issuing tab, iframe or popup may differ from the consuming context,
// so single-use plus short expiry is the whole replay defense.
const DefaultChallengeTTL = 90 * time.Second

// Challenge is a random, single-use value to be signed by the Agent.
type Challenge struct {
	Value     string    `json:"challenge"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConsumeResult is the outcome of a challenge consumption attempt.
type ConsumeResult int

const (
	// ConsumeOK means the challenge was live and is now burned.
	ConsumeOK ConsumeResult = iota
	// ConsumeExpired means the challenge existed but its TTL passed.
	ConsumeExpired
	// ConsumeAlreadyUsed means the challenge was consumed before.
	ConsumeAlreadyUsed
	// ConsumeUnknown means no such challenge was ever issued (or it was
	// swept after expiry).
	ConsumeUnknown
)

// challengeState tracks one issued challenge.
type challengeState struct {
	expiresAt time.Time
	consumed  bool
}

// ChallengeIssuer issues and consumes login challenges. Consumption is
// consume-then-check: the consumed flag flips under the lock before the
// expiry verdict, so two concurrent logins with the same challenge get
// exactly one success.
type ChallengeIssuer struct {
	mu         sync.Mutex
	ttl        time.Duration
	challenges map[string]*challengeState
	now        func() time.Time
}

// ChallengeIssuerConfig configures a ChallengeIssuer.
type ChallengeIssuerConfig struct {
	// TTL is the challenge lifetime (default DefaultChallengeTTL).
	TTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewChallengeIssuer creates a challenge issuer.
func NewChallengeIssuer(cfg *ChallengeIssuerConfig) *ChallengeIssuer {
	if cfg == nil {
		cfg = &ChallengeIssuerConfig{}
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultChallengeTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &ChallengeIssuer{
		ttl:        ttl,
		challenges: make(map[string]*challengeState),
		now:        now,
	}
}

// Issue creates a fresh high-entropy challenge.
func (c *ChallengeIssuer) Issue() (*Challenge, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("auth: failed to generate challenge: %w", err)
	}

	value := base64.RawURLEncoding.EncodeToString(buf)
	issuedAt := c.now()
	expiresAt := issuedAt.Add(c.ttl)

	c.mu.Lock()
	c.sweepLocked()
	c.challenges[value] = &challengeState{expiresAt: expiresAt}
	c.mu.Unlock()

	return &Challenge{
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Consume burns a challenge and reports whether it was live. A consumed
// or expired challenge never verifies again.
func (c *ChallengeIssuer) Consume(value string) ConsumeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.challenges[value]
	if !ok {
		return ConsumeUnknown
	}

	if state.consumed {
		return ConsumeAlreadyUsed
	}
	state.consumed = true

	if c.now().After(state.expiresAt) {
		return ConsumeExpired
	}

	return ConsumeOK
}

// sweepLocked drops challenges whose expiry plus a grace period has
// passed. Expired-but-recent entries are kept so Consume can still
// distinguish expired from unknown.
func (c *ChallengeIssuer) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	for value, state := range c.challenges {
		if state.expiresAt.Before(cutoff) {
			delete(c.challenges, value)
		}
	}
}
