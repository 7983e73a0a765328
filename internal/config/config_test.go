package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/elevation-api/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Nil(t, cfg.Server.AllowedOrigins())
	assert.Empty(t, cfg.Server.SourceRoot)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Elevation.DemDirList())
	assert.Equal(t, []string{"**/*.nc", "**/*.nc4", "**/*.grd"}, cfg.Elevation.TilePatternList())
	assert.Zero(t, cfg.Elevation.DefaultHeight)
	assert.False(t, cfg.Elevation.Watch)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SERVER_SOURCE_ROOT", "/data")
	t.Setenv("ELEVATION_DEM_DIRS", "/data/srtm, /data/alos,")
	t.Setenv("ELEVATION_GEOID_PATH", "/data/egm2008.nc")
	t.Setenv("ELEVATION_DEFAULT_HEIGHT", "-12.5")
	t.Setenv("ELEVATION_WATCH", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins())
	assert.Equal(t, "/data", cfg.Server.SourceRoot)
	assert.Equal(t, []string{"/data/srtm", "/data/alos"}, cfg.Elevation.DemDirList())
	assert.Equal(t, "/data/egm2008.nc", cfg.Elevation.GeoidPath)
	assert.Equal(t, -12.5, cfg.Elevation.DefaultHeight)
	assert.True(t, cfg.Elevation.Watch)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ELEVATION_GEOID_PATH=/from/dotenv.nc\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ELEVATION_GEOID_PATH") })

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv.nc", cfg.Elevation.GeoidPath)
}

func TestLoadConfig_EnvironmentWinsOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("ELEVATION_GEOID_PATH=/from/dotenv.nc\nSERVER_PORT=7070\n"), 0o600))
	t.Setenv("ELEVATION_GEOID_PATH", "/from/env.nc")
	t.Cleanup(func() { _ = os.Unsetenv("SERVER_PORT") })

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.nc", cfg.Elevation.GeoidPath)
	assert.Equal(t, "7070", cfg.Server.Port, "unset variables still come from .env")
}
