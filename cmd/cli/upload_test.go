package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "landing/pdf/2024/20240115-visa.pdf", UploadKey("/landing/pdf/", "20240115-visa.pdf"))
}

func TestCollectPDFs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2023"), 0o755))
	for _, name := range []string{"a.pdf", "notes.txt", filepath.Join("2023", "B.PDF")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := collectPDFs([]string{dir})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "2023", "B.PDF"),
	}, files)

	_, err = collectPDFs([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
