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

package file

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certauth/pkg/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	backend, err := New(t.TempDir())
	require.NoError(t, err)
	return backend
}

func TestNew(t *testing.T) {
	t.Run("empty root rejected", func(t *testing.T) {
		_, err := New("")
		assert.Error(t, err)
	})

	t.Run("creates missing root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "data")
		_, err := New(root)
		require.NoError(t, err)

		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestPutGet(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("certs/root-ca.pem", []byte("pem-data"), nil))

	value, err := backend.Get("certs/root-ca.pem")
	require.NoError(t, err)
	assert.Equal(t, []byte("pem-data"), value)

	_, err = backend.Get("certs/missing.pem")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	root := t.TempDir()
	backend, err := New(root)
	require.NoError(t, err)

	require.NoError(t, backend.Put("keys/intermediate-ca.pem", []byte("key"), nil))
	require.NoError(t, backend.Put("certs/intermediate-ca.pem", []byte("cert"), nil))

	keyInfo, err := os.Stat(filepath.Join(root, "keys", "intermediate-ca.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm())

	certInfo, err := os.Stat(filepath.Join(root, "certs", "intermediate-ca.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), certInfo.Mode().Perm())
}

func TestKeyValidation(t *testing.T) {
	backend := newTestBackend(t)

	for _, key := range []string{
		"",
		"../outside",
		"a/../../outside",
		"/etc/passwd",
		"nul\x00byte",
	} {
		assert.ErrorIs(t, backend.Put(key, []byte("x"), nil), storage.ErrInvalidKey, "key %q", key)
	}

	// Interior path segments are allowed.
	assert.NoError(t, backend.Put("certs/sub/leaf.pem", []byte("x"), nil))
}

func TestDelete(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("key", []byte("value"), nil))
	require.NoError(t, backend.Delete("key"))

	_, err := backend.Get("key")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, backend.Delete("key"), storage.ErrNotFound)
}

func TestList(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("certs/b.pem", []byte("b"), nil))
	require.NoError(t, backend.Put("certs/a.pem", []byte("a"), nil))
	require.NoError(t, backend.Put("keys/a.pem", []byte("k"), nil))

	keys, err := backend.List("certs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"certs/a.pem", "certs/b.pem"}, keys)
}

func TestExists(t *testing.T) {
	backend := newTestBackend(t)

	require.NoError(t, backend.Put("key", []byte("value"), nil))

	exists, err := backend.Exists("key")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = backend.Exists("other")
	require.NoError(t, err)
	assert.False(t, exists)
}

// Values survive a backend restart over the same directory.
func TestReopen(t *testing.T) {
	root := t.TempDir()

	first, err := New(root)
	require.NoError(t, err)
	require.NoError(t, first.Put("certs/root-ca.pem", []byte("persisted"), nil))
	require.NoError(t, first.Close())

	second, err := New(root)
	require.NoError(t, err)
	value, err := second.Get("certs/root-ca.pem")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), value)
}
