package fs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	f, err = lfs.OpenFile(newPath, os.O_RDONLY, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, f.Close())

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.OpenFile(newPath, os.O_RDONLY, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("broken", Fault{FailOnWrite: true, FailOnSync: true, FailOnRename: true})

	t.Run("matching file fails", func(t *testing.T) {
		f, err := ffs.OpenFile(filepath.Join(tmp, "broken.bin"), os.O_CREATE|os.O_WRONLY, 0644)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.Write([]byte("x"))
		assert.ErrorIs(t, err, ErrInjected)
		assert.ErrorIs(t, f.Sync(), ErrInjected)
	})

	t.Run("rename target", func(t *testing.T) {
		src := filepath.Join(tmp, "ok.bin")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
		err := ffs.Rename(src, filepath.Join(tmp, "broken-target.bin"))
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("other files pass", func(t *testing.T) {
		f, err := ffs.OpenFile(filepath.Join(tmp, "fine.bin"), os.O_CREATE|os.O_WRONLY, 0644)
		require.NoError(t, err)
		_, err = f.Write([]byte("x"))
		assert.NoError(t, err)
		assert.NoError(t, f.Close())
	})

	t.Run("clear rules", func(t *testing.T) {
		ffs.ClearRules()
		f, err := ffs.OpenFile(filepath.Join(tmp, "broken2.bin"), os.O_CREATE|os.O_WRONLY, 0644)
		require.NoError(t, err)
		_, err = f.Write([]byte("x"))
		assert.NoError(t, err)
		assert.NoError(t, f.Close())
	})
}
