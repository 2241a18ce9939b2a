package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "./agenda.yaml", cfg.AgendaPath)
	require.Equal(t, "./depend.yaml", cfg.DependPath)
	require.GreaterOrEqual(t, cfg.Workers, 1)
}

func TestLoadOverridesFromViper(t *testing.T) {
	v := viper.New()
	v.Set("workers", 4)
	v.Set("agenda", "custom.yaml")
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "custom.yaml", cfg.AgendaPath)
}
