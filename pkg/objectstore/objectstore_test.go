package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Write_ContentAddressedPath(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	content := "hello, object store"

	result, err := store.Write(strings.NewReader(content))
	require.NoError(t, err)

	want := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(want[:]), result.ObjectID)
	assert.Equal(t, uint64(len(content)), result.Size)

	data, err := os.ReadFile(store.Path(result.ObjectID))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestStore_Write_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	_, err := store.Write(strings.NewReader("payload"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestStore_Write_SecondWriterOfIdenticalContentIsNoop(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	first, err := store.Write(strings.NewReader("identical"))
	require.NoError(t, err)
	second, err := store.Write(strings.NewReader("identical"))
	require.NoError(t, err)

	assert.Equal(t, first.ObjectID, second.ObjectID)
	data, err := os.ReadFile(store.Path(first.ObjectID))
	require.NoError(t, err)
	assert.Equal(t, "identical", string(data))
}

func TestStore_Path(t *testing.T) {
	store := New("/tmp/objects")
	assert.Equal(t, filepath.Join("/tmp/objects", "abc123"), store.Path("abc123"))
}

func TestRandomString_Length(t *testing.T) {
	s := randomString(32)
	assert.Len(t, s, 32)
	for _, r := range s {
		assert.Contains(t, randomStringAlphabet, string(r))
	}
}
