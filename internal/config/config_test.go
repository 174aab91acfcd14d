package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, ValidateWithDetails(DefaultConfig()))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", map[string]any{"store.path": filepath.Join(t.TempDir(), "m.db")})
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Scoring.RRFK)
	assert.Equal(t, 72*time.Hour, cfg.Scoring.RecencyHalfLife)
	assert.Equal(t, 0.1, cfg.ACB.Boost)
	assert.Equal(t, 24*time.Hour, cfg.Consolidation.ShortWindow)
	assert.Contains(t, cfg.Scoring.Profiles, "debug")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
store:
  path: ` + filepath.Join(dir, "file.db") + `
scoring:
  rrf_k: 30
  recency_half_life: 12h
consolidation:
  decay_base: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("WORKING_MEMORY_ACB__RECENT_WINDOW", "4")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Scoring.RRFK)
	assert.Equal(t, 12*time.Hour, cfg.Scoring.RecencyHalfLife)
	assert.Equal(t, 0.9, cfg.Consolidation.DecayBase)
	assert.Equal(t, 4, cfg.ACB.RecentWindow)
	// untouched sections keep their defaults
	assert.Equal(t, 0.25, cfg.Consolidation.ReinforceRate)
	assert.Equal(t, "chromem", cfg.Vector.Backend)
}

func TestLoadOverridesWin(t *testing.T) {
	t.Setenv("WORKING_MEMORY_LLM__PROVIDER", "openai")
	cfg, err := Load("", map[string]any{
		"store.path":   filepath.Join(t.TempDir(), "m.db"),
		"llm.provider": "anthropic",
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestValidationErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "word2vec"
	cfg.Vector.Backend = "pgvector"
	cfg.ACB.Boost = 2

	err := ValidateWithDetails(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["Config.Embedding.Provider"])
	assert.True(t, fields["Config.Vector.DSN"])
	assert.True(t, fields["Config.ACB.Boost"])
}

func TestUnsupportedFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))
	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestWeightsFor(t *testing.T) {
	sc := DefaultConfig().Scoring
	assert.Equal(t, sc.Profiles["debug"], sc.WeightsFor("debug"))
	assert.Equal(t, sc.Weights, sc.WeightsFor("chat"))
}

func TestProfileFor(t *testing.T) {
	sc := DefaultConfig().Scoring
	assert.Equal(t, "planning", sc.ProfileFor("planning"))
	assert.Equal(t, "default", sc.ProfileFor(""))
}
