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

// Package registry tracks issued certificates and their owning users.
// Certificates are indexed by serial number; revocation marks a record
// inactive without deleting it. The registry enforces serial uniqueness
// at the persistence layer rather than assuming 128 random bits never
// collide.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-certauth/pkg/storage"
)

var (
	// ErrSerialExists is returned when registering a serial number that
	// is already in the issued set.
	ErrSerialExists = errors.New("registry: serial number already registered")

	// ErrCertNotFound is returned when no certificate is registered
	// under a serial number.
	ErrCertNotFound = errors.New("registry: certificate not found")

	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = errors.New("registry: user not found")
)

// Record is an issued-certificate entry. Immutable after registration
// except for the Revoked flag.
type Record struct {
	SerialNumber   string    `json:"serial_number"`
	UserID         string    `json:"user_id"`
	CommonName     string    `json:"common_name"`
	SubjectDN      string    `json:"subject_dn"`
	IssuerDN       string    `json:"issuer_dn"`
	NotBefore      time.Time `json:"not_before"`
	NotAfter       time.Time `json:"not_after"`
	CertificatePEM []byte    `json:"certificate_pem"`
	Revoked        bool      `json:"revoked"`
	IssuedAt       time.Time `json:"issued_at"`
}

// User is the owner of one or more issued certificates. There is no
// field for a certificate password anywhere in this model; passwords
// never reach the server.
type User struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email,omitempty"`
	Created time.Time `json:"created"`
}

// Registry is a storage-backed certificate and user registry.
// Registration is serialized so the exists/put pair is atomic.
type Registry struct {
	mu      sync.Mutex
	backend storage.Backend
}

// New creates a Registry on top of the given storage backend.
func New(backend storage.Backend) (*Registry, error) {
	if backend == nil {
		return nil, fmt.Errorf("registry: storage backend is required")
	}
	return &Registry{backend: backend}, nil
}

// Register stores a new issued-certificate record. Returns
// ErrSerialExists if the serial number is already registered; callers
// retry issuance with a fresh serial.
func (r *Registry) Register(record *Record) error {
	if record == nil || record.SerialNumber == "" {
		return fmt.Errorf("registry: record with serial number is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := certKey(record.SerialNumber)
	exists, err := r.backend.Exists(key)
	if err != nil {
		return fmt.Errorf("registry: failed to check serial: %w", err)
	}
	if exists {
		return ErrSerialExists
	}

	if record.IssuedAt.IsZero() {
		record.IssuedAt = time.Now()
	}

	return r.putJSON(key, record)
}

// Get returns the record registered under the given serial number.
func (r *Registry) Get(serialNumber string) (*Record, error) {
	data, err := r.backend.Get(certKey(serialNumber))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCertNotFound
		}
		return nil, fmt.Errorf("registry: failed to load record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("registry: corrupt record for serial %s: %w", serialNumber, err)
	}

	return &record, nil
}

// Revoke marks the record inactive. Idempotent; revoking an already
// revoked certificate succeeds.
func (r *Registry) Revoke(serialNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.Get(serialNumber)
	if err != nil {
		return err
	}

	if record.Revoked {
		return nil
	}

	record.Revoked = true
	return r.putJSON(certKey(serialNumber), record)
}

// ListForUser returns all records owned by the given user, newest first.
func (r *Registry) ListForUser(userID string) ([]*Record, error) {
	keys, err := r.backend.List(certPrefix)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list records: %w", err)
	}

	records := make([]*Record, 0)
	for _, key := range keys {
		data, err := r.backend.Get(key)
		if err != nil {
			return nil, fmt.Errorf("registry: failed to load record %s: %w", key, err)
		}

		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("registry: corrupt record %s: %w", key, err)
		}

		if record.UserID == userID {
			records = append(records, &record)
		}
	}

	// Newest first
	sort.Slice(records, func(i, j int) bool {
		return records[i].IssuedAt.After(records[j].IssuedAt)
	})

	return records, nil
}

// Latest returns the most recently issued record for the user, or
// ErrCertNotFound when none exists.
func (r *Registry) Latest(userID string) (*Record, error) {
	records, err := r.ListForUser(userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrCertNotFound
	}
	return records[0], nil
}

// SaveUser stores or updates a user record.
func (r *Registry) SaveUser(user *User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("registry: user with id is required")
	}
	if user.Created.IsZero() {
		user.Created = time.Now()
	}
	return r.putJSON(userKey(user.ID), user)
}

// GetUser returns the user with the given id.
func (r *Registry) GetUser(id string) (*User, error) {
	data, err := r.backend.Get(userKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("registry: failed to load user: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("registry: corrupt user record %s: %w", id, err)
	}

	return &user, nil
}

// UserBySerial resolves the owning user of a registered certificate.
func (r *Registry) UserBySerial(serialNumber string) (*User, error) {
	record, err := r.Get(serialNumber)
	if err != nil {
		return nil, err
	}
	if record.UserID == "" {
		return nil, ErrUserNotFound
	}
	return r.GetUser(record.UserID)
}

const certPrefix = storage.CertPrefix + "issued/"

func certKey(serialNumber string) string {
	return certPrefix + serialNumber + ".json"
}

func userKey(id string) string {
	return storage.UserPrefix + id + ".json"
}

func (r *Registry) putJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("registry: failed to marshal record: %w", err)
	}
	if err := r.backend.Put(key, data, nil); err != nil {
		return fmt.Errorf("registry: failed to store record: %w", err)
	}
	return nil
}
