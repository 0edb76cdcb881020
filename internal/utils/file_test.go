package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.True(t, DirExists(dir))
	require.NoError(t, EnsureDir(dir))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.Error(t, EnsureDir(file))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IMG_1.json")
	content := []byte("{\"sensor\": \"thermal\",\n  \"alt\": 12.50}\n")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	dst := filepath.Join(dir, "copy.json")
	require.NoError(t, os.WriteFile(dst, []byte("old content that is longer than the new one"), 0o644))
	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, content, got)

	require.Error(t, CopyFile(filepath.Join(dir, "missing.json"), dst))
	require.Error(t, CopyFile(dir, dst))
	require.Error(t, CopyFile(src, filepath.Join(dir, "no", "such", "dir.json")))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, WriteFile(path, []byte("one")))
	require.NoError(t, WriteFile(path, []byte("two")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "two", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.jpg", "c.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	files, err := ListFiles(dir, "jpg")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.JPG")}, files)

	all, err := ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, all, 4)

	_, err = ListFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestFileHelpers(t *testing.T) {
	require.Equal(t, "jpg", GetFileExtension("IMG_1.JPG"))
	require.Equal(t, "", GetFileExtension("README"))
	require.True(t, HasExtension("x.webp", ".webp", "png"))
	require.False(t, HasExtension("x.json", "jpg"))

	dir := t.TempDir()
	require.False(t, FileExists(dir))
	require.False(t, FileExists(filepath.Join(dir, "nope")))
	require.False(t, DirExists(filepath.Join(dir, "nope")))
}
