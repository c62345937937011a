package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOXEL_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 32, cfg.Terrain.ChunkSize)
	assert.Equal(t, 5, cfg.Pipeline.RenderDistance)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
terrain:
  chunk_size: 16
  seed: 42
pipeline:
  render_distance: 2
  tick_interval: 50ms
  viewpoints:
    - [1, 2, 3]
eventbus:
  url: nats://127.0.0.1:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Terrain.ChunkSize)
	assert.Equal(t, int64(42), cfg.Terrain.Seed)
	assert.Equal(t, 2, cfg.Pipeline.RenderDistance)
	assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.TickInterval)
	assert.Equal(t, [][3]float32{{1, 2, 3}}, cfg.Pipeline.Viewpoints)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.EventBus.URL)

	// Незаданные поля остаются дефолтными
	assert.Equal(t, Default().Terrain.SeaLevel, cfg.Terrain.SeaLevel)
	assert.Equal(t, "VOXEL", cfg.EventBus.Stream)

	assert.Equal(t, 16, cfg.Stream().ChunkSize)
	assert.Equal(t, int64(42), cfg.Generator().Seed)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "terrain:\n  seed: 7\n")
	t.Setenv("VOXEL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Terrain.Seed)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "terrain: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "terrain:\n  chunk_size: 0\n"))
	assert.ErrorContains(t, err, "chunk_size")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative radius", func(c *Config) { c.Pipeline.RenderDistance = -1 }, "render_distance"},
		{"zero frequency", func(c *Config) { c.Terrain.Frequency = 0 }, "frequency"},
		{"decoration chance", func(c *Config) { c.Terrain.DecorationChance = 2 }, "decoration_chance"},
		{"negative workers", func(c *Config) { c.Pipeline.Workers = -3 }, "workers"},
		{"zero tick", func(c *Config) { c.Pipeline.TickInterval = 0 }, "tick_interval"},
		{"empty atlas grid", func(c *Config) { c.Atlas.Cols = 0 }, "atlas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestPortFallbacks(t *testing.T) {
	var s ServerConfig

	t.Setenv("VOXEL_REST_PORT", "")
	assert.Equal(t, 8088, s.GetRESTPort())

	t.Setenv("VOXEL_REST_PORT", "9000")
	assert.Equal(t, 9000, s.GetRESTPort())

	t.Setenv("VOXEL_REST_PORT", "junk")
	assert.Equal(t, 8088, s.GetRESTPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort())

	t.Setenv("VOXEL_METRICS_PORT", "")
	assert.Equal(t, 0, s.GetMetricsPort())
}
