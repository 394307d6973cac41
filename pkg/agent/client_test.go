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

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent mimics the Agent's REST surface for client tests.
func fakeAgent(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /certificates", func(w http.ResponseWriter, r *http.Request) {
		entries := []CertificateEntry{
			{
				CertID:       "alice.p12",
				SerialNumber: "1BADB002",
				SubjectDN:    "CN=alice",
				IssuerDN:     "CN=Test Intermediate CA",
				NotAfter:     time.Now().Add(24 * time.Hour),
			},
		}
		if r.URL.Query().Get("drive") == "E:" {
			entries = nil
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("POST /certificates/{certID}/sign", func(w http.ResponseWriter, r *http.Request) {
		var signReq SignRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&signReq))

		if signReq.Password != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SignResponse{
			Signature:    "c2lnbmF0dXJl",
			SerialNumber: "1BADB002",
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewDefaults(t *testing.T) {
	client := New(nil)
	assert.Equal(t, "http://127.0.0.1:16580", client.baseURL)

	// Scheme-less addresses get http and trailing slashes are trimmed.
	client = New(&Config{Address: "localhost:9000/"})
	assert.Equal(t, "http://localhost:9000", client.baseURL)
}

func TestHealth(t *testing.T) {
	server := fakeAgent(t)
	client := New(&Config{Address: server.URL})

	assert.NoError(t, client.Health(context.Background()))
}

func TestHealthUnreachable(t *testing.T) {
	client := New(&Config{
		Address: "http://127.0.0.1:1",
		Timeout: time.Second,
	})

	err := client.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCertificates(t *testing.T) {
	server := fakeAgent(t)
	client := New(&Config{Address: server.URL})

	entries, err := client.Certificates(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice.p12", entries[0].CertID)
	assert.Equal(t, "1BADB002", entries[0].SerialNumber)

	t.Run("drive filter", func(t *testing.T) {
		entries, err := client.Certificates(context.Background(), "E:")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestSign(t *testing.T) {
	server := fakeAgent(t)
	client := New(&Config{Address: server.URL})

	t.Run("success", func(t *testing.T) {
		resp, err := client.Sign(context.Background(), "alice.p12", &SignRequest{
			Data:     "challenge-value",
			Password: "correct-horse",
		})
		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", resp.Signature)
		assert.Equal(t, "1BADB002", resp.SerialNumber)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := client.Sign(context.Background(), "alice.p12", &SignRequest{
			Data:     "challenge-value",
			Password: "battery-staple",
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("agent down", func(t *testing.T) {
		down := New(&Config{Address: "http://127.0.0.1:1", Timeout: time.Second})
		_, err := down.Sign(context.Background(), "alice.p12", &SignRequest{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
