package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionAt(t *testing.T) {
	at := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "20260831093000", VersionAt(at))
}

func TestScaffold(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	at := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)

	path, err := Scaffold(dir, "Add Posts Collection", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260831093000_add_posts_collection.go"), path)

	src, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(src), "package migrations")
	assert.Contains(t, string(src), `Version: "20260831093000"`)
	assert.Contains(t, string(src), `Name:    "add_posts_collection"`)

	_, err = Scaffold(dir, "add posts collection", at)
	assert.ErrorContains(t, err, "already exists")
}

func TestScaffoldRejectsEmptyName(t *testing.T) {
	_, err := Scaffold(t.TempDir(), "!!!", time.Now())
	assert.Error(t, err)
}
