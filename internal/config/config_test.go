package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harcapture/engine/internal/match"
)

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := Defaults()

	require.Equal(t, "selenium-har-capture", cfg.CreatorName)
	require.Equal(t, match.ScopePagesAndAPI, cfg.ResponseBodyScope)
	require.False(t, cfg.EnableCompression)
}

func TestLoadProjectConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".harcapture.yaml"), []byte(`
creator_name: demo-tool
response_body_scope: all
enable_compression: true
sensitive_headers:
  - Authorization
  - Cookie
`), 0o644))

	cfg := Defaults()
	require.NoError(t, loadYAMLFile(&cfg, filepath.Join(dir, ".harcapture.yaml")))

	require.Equal(t, "demo-tool", cfg.CreatorName)
	require.Equal(t, match.ScopeAll, cfg.ResponseBodyScope)
	require.True(t, cfg.EnableCompression)
	require.Equal(t, []string{"Authorization", "Cookie"}, cfg.SensitiveHeaders)
}

func TestLoadProjectConfigMissingIsFine(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cfg := Defaults()
	require.NoError(t, loadYAMLFile(&cfg, filepath.Join(dir, ".harcapture.yaml")))
	require.Equal(t, Defaults(), cfg)
}

func TestLoadProjectConfigInvalidYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".harcapture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("creator_name: [unterminated"), 0o644))

	cfg := Defaults()
	require.Error(t, loadYAMLFile(&cfg, path))
}

func TestLoadEnvVars(t *testing.T) {
	t.Setenv("HARCAPTURE_CREATOR_NAME", "env-tool")
	t.Setenv("HARCAPTURE_RESPONSE_BODY_SCOPE", "none")
	t.Setenv("HARCAPTURE_MAX_OUTPUT_FILE_SIZE", "1048576")
	t.Setenv("HARCAPTURE_ENABLE_COMPRESSION", "true")

	cfg := Defaults()
	loadEnvVars(&cfg)

	require.Equal(t, "env-tool", cfg.CreatorName)
	require.Equal(t, match.ScopeNone, cfg.ResponseBodyScope)
	require.EqualValues(t, 1048576, cfg.MaxOutputFileSize)
	require.True(t, cfg.EnableCompression)
}

func TestEnvVarInvalidScopeIsIgnored(t *testing.T) {
	t.Setenv("HARCAPTURE_RESPONSE_BODY_SCOPE", "nonsense")

	cfg := Defaults()
	loadEnvVars(&cfg)

	require.Equal(t, match.ScopePagesAndAPI, cfg.ResponseBodyScope)
}

func TestConfigPriorityOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".harcapture.yaml"), []byte(`
creator_name: project-tool
response_body_scope: all
`), 0o644))

	t.Setenv("HARCAPTURE_CREATOR_NAME", "env-tool")

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	require.Equal(t, "env-tool", cfg.CreatorName)
	require.Equal(t, match.ScopeAll, cfg.ResponseBodyScope)
}

func TestOverridesWinOverEverything(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".harcapture.yaml"), []byte(`
creator_name: project-tool
`), 0o644))
	t.Setenv("HARCAPTURE_CREATOR_NAME", "env-tool")

	name := "flag-tool"
	overrides := &Overrides{CreatorName: &name}

	cfg, err := Load(dir, overrides)
	require.NoError(t, err)
	require.Equal(t, "flag-tool", cfg.CreatorName)
}

func TestParseScope(t *testing.T) {
	t.Parallel()
	cases := map[string]match.BodyScope{
		"none":         match.ScopeNone,
		"pages_and_api": match.ScopePagesAndAPI,
		"ALL":          match.ScopeAll,
	}
	for in, want := range cases {
		got, ok := parseScope(in)
		require.True(t, ok, in)
		require.Equal(t, want, got)
	}
	_, ok := parseScope("bogus")
	require.False(t, ok)
}
