package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
)

func newTestTierer(t *testing.T) (*Tierer, string, string) {
	t.Helper()
	fast := t.TempDir()
	archive := t.TempDir()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	cfg := &config.StorageConfig{
		FastRoot:        fast,
		ArchiveRoot:     archive,
		ColdAfterDays:   30,
		ExcludePatterns: []string{"*.pid", ".git/*", "keep/*"},
	}
	return New(cfg, st), fast, archive
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("cargo"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestExcluded(t *testing.T) {
	tr, _, _ := newTestTierer(t)
	tests := []struct {
		rel  string
		want bool
	}{
		{"daemon.pid", true},
		{"sub/daemon.pid", true}, // basename match
		{".git/config", true},
		{".git/objects/ab/cdef", true}, // nested under directory pattern
		{"keep/photo.jpg", true},
		{"photos/2025/trip.jpg", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.excluded(tt.rel), tt.rel)
	}
}

func TestFindOldFiles(t *testing.T) {
	tr, fast, _ := newTestTierer(t)

	writeAged(t, filepath.Join(fast, "old", "report.txt"), 60*24*time.Hour)
	writeAged(t, filepath.Join(fast, "fresh.txt"), time.Hour)
	writeAged(t, filepath.Join(fast, ".git", "config"), 60*24*time.Hour)
	writeAged(t, filepath.Join(fast, "lock.pid"), 60*24*time.Hour)

	cold, err := tr.FindOldFiles(30)
	require.NoError(t, err)
	require.Len(t, cold, 1)
	assert.Equal(t, filepath.Join("old", "report.txt"), cold[0].RelPath)
}

func TestArchiveOldMovesAndPreservesLayout(t *testing.T) {
	tr, fast, archive := newTestTierer(t)
	writeAged(t, filepath.Join(fast, "logs", "voyage.log"), 60*24*time.Hour)

	moved, err := tr.ArchiveOld(false)
	require.NoError(t, err)
	require.Len(t, moved, 1)

	// Gone from the fast tier, present in the archive under the same path.
	_, err = os.Stat(filepath.Join(fast, "logs", "voyage.log"))
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(archive, "logs", "voyage.log"))
	require.NoError(t, err)
	assert.Equal(t, "cargo", string(data))
}

func TestArchiveOldDryRun(t *testing.T) {
	tr, fast, archive := newTestTierer(t)
	writeAged(t, filepath.Join(fast, "old.dat"), 60*24*time.Hour)

	moved, err := tr.ArchiveOld(true)
	require.NoError(t, err)
	require.Len(t, moved, 1)

	_, err = os.Stat(filepath.Join(fast, "old.dat"))
	assert.NoError(t, err, "dry run must not move")
	_, err = os.Stat(filepath.Join(archive, "old.dat"))
	assert.True(t, os.IsNotExist(err))
}

func TestArchiveCollisionGetsSuffix(t *testing.T) {
	tr, fast, archive := newTestTierer(t)
	writeAged(t, filepath.Join(fast, "dup.txt"), 60*24*time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(archive, "dup.txt"), []byte("earlier"), 0o644))

	moved, err := tr.ArchiveOld(false)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.NotEqual(t, filepath.Join(archive, "dup.txt"), moved[0].To)
	assert.Contains(t, filepath.Base(moved[0].To), "dup_")

	// The earlier archive copy is untouched.
	data, err := os.ReadFile(filepath.Join(archive, "dup.txt"))
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(data))
}
