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

package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certauth/pkg/storage/memory"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(memory.New())
	require.NoError(t, err)
	return reg
}

func testRecord(serial, userID string, issuedAt time.Time) *Record {
	return &Record{
		SerialNumber:   serial,
		UserID:         userID,
		CommonName:     "alice",
		SubjectDN:      "CN=alice",
		IssuerDN:       "CN=Test Intermediate CA",
		NotBefore:      issuedAt,
		NotAfter:       issuedAt.AddDate(1, 0, 0),
		CertificatePEM: []byte("-----BEGIN CERTIFICATE-----\n-----END CERTIFICATE-----\n"),
		IssuedAt:       issuedAt,
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("stores and reads back", func(t *testing.T) {
		record := testRecord("AA01", "user-1", time.Now())
		require.NoError(t, reg.Register(record))

		got, err := reg.Get("AA01")
		require.NoError(t, err)
		assert.Equal(t, record.UserID, got.UserID)
		assert.Equal(t, record.SubjectDN, got.SubjectDN)
		assert.False(t, got.Revoked)
	})

	t.Run("duplicate serial rejected", func(t *testing.T) {
		err := reg.Register(testRecord("AA01", "user-2", time.Now()))
		assert.ErrorIs(t, err, ErrSerialExists)
	})

	t.Run("missing serial rejected", func(t *testing.T) {
		assert.Error(t, reg.Register(&Record{}))
		assert.Error(t, reg.Register(nil))
	})
}

// Concurrent registrations under the same serial admit exactly one.
func TestRegisterConcurrent(t *testing.T) {
	reg := newTestRegistry(t)

	const racers = 16
	var ok atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			if err := reg.Register(testRecord("RACE01", fmt.Sprintf("user-%d", n), time.Now())); err == nil {
				ok.Add(1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
}

func TestGetUnknownSerial(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Get("FFFF")
	assert.ErrorIs(t, err, ErrCertNotFound)
}

func TestRevoke(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(testRecord("BB01", "user-1", time.Now())))

	require.NoError(t, reg.Revoke("BB01"))
	got, err := reg.Get("BB01")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	// Idempotent.
	require.NoError(t, reg.Revoke("BB01"))

	assert.ErrorIs(t, reg.Revoke("FFFF"), ErrCertNotFound)
}

func TestListForUser(t *testing.T) {
	reg := newTestRegistry(t)
	base := time.Now().Add(-time.Hour)

	require.NoError(t, reg.Register(testRecord("CC01", "user-1", base)))
	require.NoError(t, reg.Register(testRecord("CC02", "user-1", base.Add(time.Minute))))
	require.NoError(t, reg.Register(testRecord("CC03", "user-2", base.Add(2*time.Minute))))

	records, err := reg.ListForUser("user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "CC02", records[0].SerialNumber)
	assert.Equal(t, "CC01", records[1].SerialNumber)

	empty, err := reg.ListForUser("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLatest(t *testing.T) {
	reg := newTestRegistry(t)
	base := time.Now().Add(-time.Hour)

	require.NoError(t, reg.Register(testRecord("DD01", "user-1", base)))
	require.NoError(t, reg.Register(testRecord("DD02", "user-1", base.Add(time.Minute))))

	latest, err := reg.Latest("user-1")
	require.NoError(t, err)
	assert.Equal(t, "DD02", latest.SerialNumber)

	_, err = reg.Latest("nobody")
	assert.ErrorIs(t, err, ErrCertNotFound)
}

func TestUsers(t *testing.T) {
	reg := newTestRegistry(t)

	user := &User{ID: "user-1", Name: "alice", Email: "alice@example.com", Created: time.Now()}
	require.NoError(t, reg.SaveUser(user))

	t.Run("get by id", func(t *testing.T) {
		got, err := reg.GetUser("user-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Name)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := reg.GetUser("nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("resolve by serial", func(t *testing.T) {
		require.NoError(t, reg.Register(testRecord("EE01", "user-1", time.Now())))

		owner, err := reg.UserBySerial("EE01")
		require.NoError(t, err)
		assert.Equal(t, "user-1", owner.ID)

		_, err = reg.UserBySerial("FFFF")
		assert.Error(t, err)
	})
}
