package session

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			fs, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { fs.Close() })
			return fs
		},
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			_, ok, err := s.Get(ctx, "session")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Update(ctx, "session", []byte(`{"terminals":[]}`)))
			got, ok, err := s.Get(ctx, "session")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"terminals":[]}`, string(got))

			require.NoError(t, s.Update(ctx, "session", []byte("second")))
			got, _, _ = s.Get(ctx, "session")
			assert.Equal(t, "second", string(got))

			require.NoError(t, s.Update(ctx, "session", nil))
			_, ok, err = s.Get(ctx, "session")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Update(ctx, "session", nil), "deleting a missing key")
		})
	}
}

func TestFileStoreCompressesAndRestrictsPermissions(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	defer fs.Close()

	payload := []byte(strings.Repeat("scrollback line\n", 500))
	require.NoError(t, fs.Update(context.Background(), "session", payload))

	info, err := os.Stat(filepath.Join(dir, "session.zst"))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(payload)))
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}

func TestFileStoreRejectsBadKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer fs.Close()

	for _, key := range []string{"", "..", "a/b", `a\b`} {
		assert.Error(t, fs.Update(context.Background(), key, []byte("x")), key)
	}
}

func TestFileStoreCorruptData(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.zst"), []byte("not zstd"), 0o600))
	_, _, err = fs.Get(context.Background(), "session")
	assert.Error(t, err)
}
