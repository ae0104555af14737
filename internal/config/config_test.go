package config_test

import (
	"linksnap/internal/config"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	viper.Reset()

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "__ARCHIVE", cfg.ArchiveName)
	assert.Equal(t, "__LOGS", cfg.LogsName)
	assert.Equal(t, ".__SHADOW", cfg.ShadowName)
	assert.Equal(t, "run-", cfg.RunPrefix)
	assert.Equal(t, "native", cfg.Engine)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LINKSNAP_ENGINE", "rsync")
	viper.Reset()

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "rsync", cfg.Engine)
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LINKSNAP_ENGINE", "scp")
	viper.Reset()

	_, err := config.Load()
	assert.Error(t, err)
}
