package acquire

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchLocalCopiesSameDayUpload(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "upload.csv")
	dest := filepath.Join(dir, "feed.csv")
	require.NoError(t, os.WriteFile(source, []byte("a,b,c\n"), 0o644))

	require.NoError(t, FetchLocal(source, dest, time.Now()))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "a,b,c\n", string(data))
}

func TestFetchLocalRejectsStaleUpload(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "upload.csv")
	require.NoError(t, os.WriteFile(source, []byte("stale"), 0o644))

	stale := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(source, stale, stale))

	err := FetchLocal(source, filepath.Join(dir, "feed.csv"), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "modified time mismatch")
	// md5("stale")
	require.Contains(t, err.Error(), "36f34fd8319cf30f8e132ef294c616af")
}

func TestFetchLocalMissingUpload(t *testing.T) {
	dir := t.TempDir()
	err := FetchLocal(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "feed.csv"), time.Now())
	require.Error(t, err)
}
