package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryWhenNoPath(t *testing.T) {
	s, err := New("", false)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Mode())
}

func TestNew_SQLiteWhenPathSet(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "store.db"), false)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Mode())

	events, err := s.ListEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNew_FallbackToMemoryOnInitFailure(t *testing.T) {
	// A path inside a directory that does not exist cannot be opened.
	badPath := filepath.Join(t.TempDir(), "missing", "nested", "store.db")

	s, err := New(badPath, true)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Mode())

	_, err = New(badPath, false)
	assert.Error(t, err)
}
