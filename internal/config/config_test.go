package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qdrant:
  host: qdrant.internal
chunking:
  size: 800
  overlap: 100
translation:
  languages: [de, en]
`), 0o644))

	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("ENABLE_TRANSLATION_INDEXING", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, []string{"de", "en"}, cfg.Translation.Languages)
	assert.False(t, cfg.Translation.Enabled)
	// Untouched values keep their defaults.
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.True(t, cfg.Retrieval.ExampleQuestions)
}

func TestValidateRejectsBadChunking(t *testing.T) {
	cfg := Default()
	cfg.Chunking.Overlap = cfg.Chunking.Size
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Chunking.Size = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Retrieval.QuestionWeight = 1.5
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
