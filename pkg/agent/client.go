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

// Package agent is a typed client for the local signing Agent's REST
// contract. The Agent holds certificate private keys on the user's
// machine; the key-unlock password is sent only from the browser to the
// Agent and never appears in any server-side type.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnauthorized is returned when the Agent rejects the key-unlock
	// password supplied by the user.
	ErrUnauthorized = errors.New("agent: bad password")

	// ErrUnavailable is returned when the Agent cannot be reached.
	ErrUnavailable = errors.New("agent: unavailable")
)

// CertificateEntry is one certificate the Agent can sign with.
type CertificateEntry struct {
	CertID       string    `json:"certId"`
	SerialNumber string    `json:"serialNumber"`
	SubjectDN    string    `json:"subjectDN"`
	IssuerDN     string    `json:"issuerDN"`
	NotAfter     time.Time `json:"notAfter"`
	IsExpired    bool      `json:"isExpired"`
}

// SignRequest asks the Agent to sign data with a stored certificate.
// The password unlocks the key locally inside the Agent.
type SignRequest struct {
	Data     string `json:"data"`
	Password string `json:"password"`
}

// SignResponse carries the signature and the serial number of the
// certificate that produced it.
type SignResponse struct {
	Signature    string `json:"signature"`
	SerialNumber string `json:"serialNumber"`
}

// Client talks to a locally-running Agent.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the Agent client.
type Config struct {
	// Address is the Agent's base address (default http://127.0.0.1:16580).
	Address string

	// Timeout bounds each request (default 10s).
	Timeout time.Duration
}

// New creates an Agent client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	baseURL := cfg.Address
	if baseURL == "" {
		baseURL = "http://127.0.0.1:16580"
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health checks that the Agent is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return nil
}

// Certificates lists the certificates available on the given drive, in
// the order the Agent reports them.
func (c *Client) Certificates(ctx context.Context, drive string) ([]CertificateEntry, error) {
	endpoint := c.baseURL + "/certificates"
	if drive != "" {
		endpoint += "?drive=" + url.QueryEscape(drive)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent: list certificates failed with status %d", resp.StatusCode)
	}

	var entries []CertificateEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("agent: failed to decode certificate list: %w", err)
	}

	return entries, nil
}

// Sign asks the Agent to sign data with the certificate identified by
// certID. A 401 from the Agent means the user's password was wrong.
func (c *Client) Sign(ctx context.Context, certID string, signReq *SignRequest) (*SignResponse, error) {
	body, err := json.Marshal(signReq)
	if err != nil {
		return nil, fmt.Errorf("agent: failed to marshal sign request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/certificates/%s/sign", c.baseURL, url.PathEscape(certID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("agent: sign failed with status %d", resp.StatusCode)
	}

	var signResp SignResponse
	if err := json.NewDecoder(resp.Body).Decode(&signResp); err != nil {
		return nil, fmt.Errorf("agent: failed to decode sign response: %w", err)
	}

	return &signResp, nil
}
