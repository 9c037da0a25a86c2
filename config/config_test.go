package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "secret")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("PORT", "")
	t.Setenv("AURA_PERSONA_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "Aura", cfg.Persona.Name)
	assert.False(t, cfg.Persona.RollbackOnFailure)
}

func TestLoad_PersonaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Nova
quick_replies:
  - "Build me a capsule wardrobe."
rollback_on_failure: true
`), 0o600))

	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("AURA_PERSONA_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Nova", cfg.Persona.Name)
	assert.Equal(t, []string{"Build me a capsule wardrobe."}, cfg.Persona.QuickReplies)
	assert.True(t, cfg.Persona.RollbackOnFailure)
	// untouched fields keep the built-in values
	assert.Equal(t, DefaultPersona().TrendKeywords, cfg.Persona.TrendKeywords)
	assert.Equal(t, DefaultPersona().SystemInstruction, cfg.Persona.SystemInstruction)
}

func TestParsePersona_Invalid(t *testing.T) {
	_, err := ParsePersona([]byte("name: [unterminated"))
	require.Error(t, err)
}
