package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicerelay/migrations"
)

func TestPendingFiles_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql": {Data: []byte("SELECT 1")},
		"001_first.sql": {Data: []byte("SELECT 1")},
		"README.md":     {Data: []byte("docs")},
	}

	files, err := pendingFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "010_later.sql"}, files)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := pendingFiles(migrations.FS)
	require.NoError(t, err)
	assert.Contains(t, files, "001_llm_usage_logs.sql")
}
