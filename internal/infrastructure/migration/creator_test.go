package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add users table", "add_users_table"},
		{"Add-Users-Table", "add_users_table"},
		{"ADD_USERS_TABLE", "add_users_table"},
		{"add__users__table", "add_users_table"},
		{"Add Users 123", "add_users_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add lot notes", "Free-text notes on lots")
	require.NoError(t, err)
	assert.Len(t, mf.Version, 14)
	assert.Equal(t, "add_lot_notes", mf.Name)

	upBase := strings.TrimSuffix(filepath.Base(mf.UpPath), ".up.sql")
	downBase := strings.TrimSuffix(filepath.Base(mf.DownPath), ".down.sql")
	assert.Equal(t, upBase, downBase)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "Free-text notes on lots")
	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	entries, err := ListMigrations(os.DirFS(dir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "add_lot_notes", entries[0].Name)
	assert.True(t, entries[0].HasDown)
}

func TestCreateMigration_Rejects(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"20261001090100_create_intake.up.sql":    {Data: []byte("--")},
		"20261001090100_create_intake.down.sql":  {Data: []byte("--")},
		"20261001090000_create_catalog.up.sql":   {Data: []byte("--")},
		"20261001090000_create_catalog.down.sql": {Data: []byte("--")},
		"20261001090200_create_billing.up.sql":   {Data: []byte("--")},
		"README.md":                              {Data: []byte("docs")},
		"embed.go":                               {Data: []byte("package migrations")},
		"notes.sql":                              {Data: []byte("--")},
		"subdir.up.sql/keep":                     {Data: []byte("")},
	}

	entries, err := ListMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "20261001090000_create_catalog", entries[0].String())
	assert.Equal(t, "create_intake", entries[1].Name)
	assert.True(t, entries[1].HasDown)
	assert.False(t, entries[2].HasDown)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	entries, err := ListMigrations(os.DirFS("/nonexistent/path/to/migrations"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
