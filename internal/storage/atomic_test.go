package storage_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/walletseal/internal/storage"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "wallet.blob")

	require.NoError(t, storage.WriteFile(path, []byte("first"), 0600, storage.ConflictOverwrite))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, storage.WriteFile(path, []byte("second"), 0600, storage.ConflictOverwrite))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run("conflict error", func(t *testing.T) {
		err := storage.WriteFile(path, []byte("third"), 0600, storage.ConflictError)
		assert.ErrorIs(t, err, storage.ErrFileExists)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run("no temp files left", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "wallet.blob", entries[0].Name())
	})

	t.Run("empty path", func(t *testing.T) {
		assert.Error(t, storage.WriteFile("", []byte("x"), 0600, storage.ConflictOverwrite))
	})
}

func TestWriteFileConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contended.blob")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, storage.WriteFile(path, []byte(fmt.Sprintf("content-%02d", n)), 0600, storage.ConflictOverwrite))
		}(i)
	}
	wg.Wait()

	// One complete writer wins
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `^content-\d{2}$`, string(data))
}
