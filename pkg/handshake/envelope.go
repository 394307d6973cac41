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

// Package handshake defines the cross-window message envelope exchanged
// between a relying application's page and the embedded certificate
// login surface (iframe or popup). The envelope is strictly typed:
// unknown message types and shape mismatches are rejected before any
// state machine sees them.
//
// Two rules make the channel safe. The embedded surface must echo the
// state value back byte-for-byte, so the embedder can detect injected
// messages by comparing against its locally stored copy. And the
// embedder must discard any message whose origin is not the expected
// authentication-server origin.
package handshake

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates handshake envelopes.
type MessageType string

const (
	// TypeRequest starts a login: embedder -> embedded surface.
	TypeRequest MessageType = "PKI_AUTH_REQUEST"
	// TypeResponse carries a successful authorization code back.
	TypeResponse MessageType = "PKI_AUTH_RESPONSE"
	// TypeError carries a terminal failure back.
	TypeError MessageType = "PKI_AUTH_ERROR"
	// TypeCancel reports that the user dismissed the surface.
	TypeCancel MessageType = "PKI_AUTH_CANCEL"
)

var (
	// ErrUnknownType is returned for a message type outside the protocol.
	ErrUnknownType = errors.New("handshake: unknown message type")

	// ErrMalformedEnvelope is returned when an envelope cannot be decoded.
	ErrMalformedEnvelope = errors.New("handshake: malformed envelope")

	// ErrOriginMismatch is returned when a message arrives from an
	// origin outside the allow-list. Such messages must be discarded
	// without advancing any authentication state.
	ErrOriginMismatch = errors.New("handshake: origin not allowed")

	// ErrStateMismatch is returned when a response does not echo the
	// state the embedder stored at request time.
	ErrStateMismatch = errors.New("handshake: state mismatch")
)

// Request asks the embedded surface to run a certificate login.
type Request struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
	Scope       string `json:"scope,omitempty"`
	State       string `json:"state"`
}

// Response returns the authorization code. State is echoed verbatim.
type Response struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// ErrorPayload returns a terminal failure. State is echoed verbatim.
type ErrorPayload struct {
	Error string `json:"error"`
	State string `json:"state"`
}

// Cancel reports user dismissal. State is echoed verbatim.
type Cancel struct {
	State string `json:"state"`
}

// Envelope is the wire form of a handshake message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewRequest wraps a Request into an envelope.
func NewRequest(req Request) (*Envelope, error) {
	return seal(TypeRequest, req)
}

// NewResponse wraps a Response into an envelope.
func NewResponse(resp Response) (*Envelope, error) {
	return seal(TypeResponse, resp)
}

// NewError wraps an ErrorPayload into an envelope.
func NewError(payload ErrorPayload) (*Envelope, error) {
	return seal(TypeError, payload)
}

// NewCancel wraps a Cancel into an envelope.
func NewCancel(payload Cancel) (*Envelope, error) {
	return seal(TypeCancel, payload)
}

func seal(t MessageType, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("handshake: failed to marshal payload: %w", err)
	}
	return &Envelope{Type: t, Payload: raw}, nil
}

// Decode parses raw JSON into an envelope, rejecting unknown types.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case TypeRequest, TypeResponse, TypeError, TypeCancel:
		return &env, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeRequest extracts the Request payload.
func (e *Envelope) DecodeRequest() (*Request, error) {
	if e.Type != TypeRequest {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnknownType, TypeRequest, e.Type)
	}
	var req Request
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &req, nil
}

// DecodeResponse extracts the Response payload.
func (e *Envelope) DecodeResponse() (*Response, error) {
	if e.Type != TypeResponse {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnknownType, TypeResponse, e.Type)
	}
	var resp Response
	if err := json.Unmarshal(e.Payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &resp, nil
}

// DecodeError extracts the ErrorPayload.
func (e *Envelope) DecodeError() (*ErrorPayload, error) {
	if e.Type != TypeError {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnknownType, TypeError, e.Type)
	}
	var payload ErrorPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &payload, nil
}

// OriginChecker validates the source origin of incoming messages
// against an allow-list.
type OriginChecker struct {
	allowed map[string]struct{}
}

// NewOriginChecker creates an origin checker for the given allow-list.
func NewOriginChecker(origins []string) *OriginChecker {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return &OriginChecker{allowed: allowed}
}

// Check returns ErrOriginMismatch when origin is not allow-listed.
func (c *OriginChecker) Check(origin string) error {
	if _, ok := c.allowed[origin]; !ok {
		return fmt.Errorf("%w: %q", ErrOriginMismatch, origin)
	}
	return nil
}

// VerifyState compares an echoed state with the locally stored value.
// A mismatch means an injected message and must abort the flow.
func VerifyState(stored, echoed string) error {
	if stored == "" || stored != echoed {
		return ErrStateMismatch
	}
	return nil
}

// Accept validates an inbound message end to end: origin allow-list,
// envelope decode, and state echo for terminal messages. It returns
// the decoded envelope only when every check passes; callers must not
// advance their authentication state otherwise.
func (c *OriginChecker) Accept(origin string, data []byte, storedState string) (*Envelope, error) {
	if err := c.Check(origin); err != nil {
		return nil, err
	}

	env, err := Decode(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeResponse:
		resp, err := env.DecodeResponse()
		if err != nil {
			return nil, err
		}
		if err := VerifyState(storedState, resp.State); err != nil {
			return nil, err
		}
	case TypeError:
		payload, err := env.DecodeError()
		if err != nil {
			return nil, err
		}
		if err := VerifyState(storedState, payload.State); err != nil {
			return nil, err
		}
	}

	return env, nil
}
