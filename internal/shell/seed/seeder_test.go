package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lablink/labtemplates/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
templates:
  - name: Widal Test
    facility_id: 1
    fields:
      - {label: O Titre, name: o_titre, type: select, options: ["Negative", "1:80"]}
  - name: Malaria RDT
    facility_id: 2
    fields:
      - {label: Result, name: result, type: radio, options: ["Positive", "Negative"]}
`

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestApplyFile_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	path := writeSeedFile(t, seedYAML)

	first, err := ApplyFile(ctx, s, path, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, first)

	second, err := ApplyFile(ctx, s, path, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, second)

	all, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestApply_SkipsNamesTakenCaseInsensitively(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	existing, err := LoadFile(writeSeedFile(t, "templates:\n  - {name: WIDAL TEST, facility_id: 5}\n"))
	require.NoError(t, err)
	_, err = Apply(ctx, s, existing, nil)
	require.NoError(t, err)

	result, err := ApplyFile(ctx, s, writeSeedFile(t, seedYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Skipped: 1}, result)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
