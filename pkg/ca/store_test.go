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

package ca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certauth/pkg/storage/memory"
)

func newTestStore(t *testing.T, keyPassword []byte) *Store {
	t.Helper()
	store, err := NewStore(&StoreConfig{
		Backend:     memory.New(),
		KeyPassword: keyPassword,
	})
	require.NoError(t, err)
	return store
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)

	_, err = NewStore(&StoreConfig{})
	assert.Error(t, err)
}

func TestStoreLifecycle(t *testing.T) {
	root, intermediate := testChain(t)
	store := newTestStore(t, nil)

	t.Run("starts uninitialized", func(t *testing.T) {
		initialized, err := store.Initialized()
		require.NoError(t, err)
		assert.False(t, initialized)

		_, err = store.Load()
		assert.ErrorIs(t, err, ErrNotInitialized)

		_, _, err = store.SigningKey()
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("save then load round-trips", func(t *testing.T) {
		err := store.Save(&CAMaterial{Root: root, Intermediate: intermediate})
		require.NoError(t, err)

		initialized, err := store.Initialized()
		require.NoError(t, err)
		assert.True(t, initialized)

		material, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, root.SerialNumber, material.Root.SerialNumber)
		assert.Equal(t, intermediate.SerialNumber, material.Intermediate.SerialNumber)
		assert.Equal(t, intermediate.SubjectDN, material.Intermediate.SubjectDN)
	})

	t.Run("signing key comes from the intermediate", func(t *testing.T) {
		cert, key, err := store.SigningKey()
		require.NoError(t, err)
		assert.Equal(t, intermediate.Certificate.SerialNumber, cert.SerialNumber)
		assert.Equal(t, intermediate.PrivateKey.D, key.D)

		// Second call is served from the cache.
		cert2, _, err := store.SigningKey()
		require.NoError(t, err)
		assert.Same(t, cert, cert2)
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		cert, _, err := store.SigningKey()
		require.NoError(t, err)

		store.Invalidate()

		cert2, _, err := store.SigningKey()
		require.NoError(t, err)
		assert.NotSame(t, cert, cert2)
		assert.Equal(t, cert.SerialNumber, cert2.SerialNumber)
	})
}

func TestStoreEncryptedKeys(t *testing.T) {
	root, intermediate := testChain(t)

	store := newTestStore(t, []byte("key-password"))
	require.NoError(t, store.Save(&CAMaterial{Root: root, Intermediate: intermediate}))

	t.Run("decrypts with the configured password", func(t *testing.T) {
		material, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, intermediate.PrivateKey.D, material.Intermediate.PrivateKey.D)
		assert.Contains(t, string(material.Intermediate.PrivateKeyPEM), "ENCRYPTED")
	})

	t.Run("wrong password fails", func(t *testing.T) {
		backend := memory.New()

		writer, err := NewStore(&StoreConfig{
			Backend:     backend,
			KeyPassword: []byte("key-password"),
		})
		require.NoError(t, err)
		require.NoError(t, writer.Save(&CAMaterial{Root: root, Intermediate: intermediate}))

		// Same stored bytes, different decryption password.
		reader, err := NewStore(&StoreConfig{
			Backend:     backend,
			KeyPassword: []byte("other-password"),
		})
		require.NoError(t, err)

		_, _, err = reader.SigningKey()
		assert.Error(t, err)
	})
}
