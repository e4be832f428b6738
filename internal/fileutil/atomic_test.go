package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_Success(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644)) //nolint:gosec // G306: Test file, relaxed perms OK
	require.NoError(t, WriteAtomic(target, []byte("new"), 0o600))

	data, err := os.ReadFile(target) //nolint:gosec // G304: Test path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAtomic_CreatesParentDirectories(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	require.NoError(t, WriteAtomic(target, []byte("x"), 0o600))

	data, err := os.ReadFile(target) //nolint:gosec // G304: Test path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, WriteAtomic(filepath.Join(dir, "a.json"), []byte("1"), 0o600))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.json", entries[0].Name())
}

func TestWriteAtomic_EmptyPath(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, WriteAtomic("", []byte("x"), 0o600), ErrEmptyPath)
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	type record struct {
		Code string `json:"code"`
	}

	path := filepath.Join(t.TempDir(), "record.json")

	var missing record
	found, err := ReadJSON(path, &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, WriteJSON(path, record{Code: "ref42"}, 0o600))

	var got record
	found, err = ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ref42", got.Code)
}

func TestReadJSON_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	var v map[string]string
	found, err := ReadJSON(path, &v)
	require.Error(t, err)
	assert.True(t, found)
}

func TestRemove_MissingIsOK(t *testing.T) {
	t.Parallel()

	require.NoError(t, Remove(filepath.Join(t.TempDir(), "nope.json")))
}
