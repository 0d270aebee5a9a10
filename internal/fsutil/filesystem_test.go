package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fsys := OSFileSystem{}

	assert.True(t, fsys.Exists("filesystem.go"))
	assert.False(t, fsys.Exists("nonexistent_file_xyz.go"))
}

func TestOSFileSystem_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFileSystem{}

	nested := filepath.Join(dir, "exp", "10")
	require.NoError(t, fsys.MkdirAll(nested, 0o755))
	require.NoError(t, fsys.WriteFile(filepath.Join(nested, "acqus"), []byte("##$SW= 12"), 0o644))

	w, err := fsys.Create(filepath.Join(nested, "fid"))
	require.NoError(t, err)
	_, err = w.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := fsys.Stat(filepath.Join(nested, "fid"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())

	files, err := fsys.ListFiles(nested)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acqus", "fid"}, files)

	var visited []string
	require.NoError(t, fsys.WalkDirs(dir, func(d string) error {
		visited = append(visited, d)
		return nil
	}))
	assert.Equal(t, []string{dir, filepath.Join(dir, "exp"), nested}, visited)
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	require.NoError(t, mfs.WriteFile("/test.txt", []byte("hello, world"), 0o644))

	data, err := mfs.ReadFile("/test.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(data))

	// Returned slices are copies.
	data[0] = 'H'
	again, err := mfs.ReadFile("/test.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(again))
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/created.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("1,2,3\n"))
	require.NoError(t, err)

	before, err := mfs.ReadFile("/out/created.csv")
	require.NoError(t, err)
	assert.Empty(t, before)

	require.NoError(t, w.Close())
	after, err := mfs.ReadFile("/out/created.csv")
	require.NoError(t, err)
	assert.Equal(t, "1,2,3\n", string(after))
	assert.True(t, mfs.Exists("/out"))
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/a/b/file", []byte("12345"), 0o600))

	info, err := mfs.Stat("/a/b/file")
	require.NoError(t, err)
	assert.Equal(t, "file", info.Name())
	assert.Equal(t, int64(5), info.Size())
	assert.Equal(t, os.FileMode(0o600), info.Mode())
	assert.False(t, info.IsDir())

	dirInfo, err := mfs.Stat("/a/b")
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())

	_, err = mfs.Stat("/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMemoryFileSystem_ListFiles(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/exp/10/fid", nil, 0o644))
	require.NoError(t, mfs.WriteFile("/exp/10/acqus", nil, 0o644))
	require.NoError(t, mfs.WriteFile("/exp/10/pdata/1/1r", nil, 0o644))

	files, err := mfs.ListFiles("/exp/10")
	require.NoError(t, err)
	assert.Equal(t, []string{"acqus", "fid"}, files)

	_, err = mfs.ListFiles("/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMemoryFileSystem_WalkDirs(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/data/s1/10/fid", nil, 0o644))
	require.NoError(t, mfs.WriteFile("/data/s1/11/fid", nil, 0o644))
	require.NoError(t, mfs.WriteFile("/data/s2/10/fid", nil, 0o644))
	require.NoError(t, mfs.WriteFile("/other/x/fid", nil, 0o644))

	t.Run("visits every directory under root", func(t *testing.T) {
		var visited []string
		require.NoError(t, mfs.WalkDirs("/data", func(d string) error {
			visited = append(visited, d)
			return nil
		}))
		assert.Equal(t, []string{"/data", "/data/s1", "/data/s1/10", "/data/s1/11", "/data/s2", "/data/s2/10"}, visited)
	})

	t.Run("skip dir prunes children", func(t *testing.T) {
		var visited []string
		require.NoError(t, mfs.WalkDirs("/data", func(d string) error {
			visited = append(visited, d)
			if d == "/data/s1" {
				return filepath.SkipDir
			}
			return nil
		}))
		assert.Equal(t, []string{"/data", "/data/s1", "/data/s2", "/data/s2/10"}, visited)
	})

	t.Run("missing root", func(t *testing.T) {
		err := mfs.WalkDirs("/absent", func(string) error { return nil })
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestFileSystemInterface(t *testing.T) {
	var _ FileSystem = OSFileSystem{}
	var _ FileSystem = (*MemoryFileSystem)(nil)
}
