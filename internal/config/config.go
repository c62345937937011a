package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxelstream/internal/stream"
	"github.com/annel0/voxelstream/internal/world"
)

// Config корневая структура конфигурации сервера рельефа.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Atlas     AtlasConfig     `yaml:"atlas"`
}

// TerrainConfig — параметры генерации рельефа
type TerrainConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	Seed             int64   `yaml:"seed"`
	Octaves          int     `yaml:"octaves"`
	Frequency        float64 `yaml:"frequency"`
	SeaLevel         int     `yaml:"sea_level"`
	DecorationChance float64 `yaml:"decoration_chance"`
}

// PipelineConfig — параметры стриминга и пула воркеров
type PipelineConfig struct {
	RenderDistance     int           `yaml:"render_distance"`
	Workers            int           `yaml:"workers"` // 0 = по числу физических ядер
	TickInterval       time.Duration `yaml:"tick_interval"`
	UnloadInterval     time.Duration `yaml:"unload_interval"`
	MaxDispatchPerTick int           `yaml:"max_dispatch_per_tick"`
	// Viewpoints используются, пока ни один просмотрщик не прислал позицию
	Viewpoints [][3]float32 `yaml:"viewpoints"`
}

type ServerConfig struct {
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"` // 0 = /metrics на REST порту
	LogLevel    string `yaml:"log_level"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто = in-memory шина
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type AtlasConfig struct {
	Path string `yaml:"path"` // пусто = сетка по индексу материала
	Cols int    `yaml:"cols"`
	Rows int    `yaml:"rows"`
}

// Default возвращает конфигурацию, с которой сервер запускается без файла
func Default() *Config {
	gen := world.DefaultGeneratorConfig()
	pipe := stream.DefaultConfig()
	return &Config{
		Terrain: TerrainConfig{
			ChunkSize:        gen.ChunkSize,
			Seed:             gen.Seed,
			Octaves:          gen.Octaves,
			Frequency:        gen.Frequency,
			SeaLevel:         gen.SeaLevel,
			DecorationChance: gen.DecorationChance,
		},
		Pipeline: PipelineConfig{
			RenderDistance:     pipe.RenderDistance,
			TickInterval:       pipe.TickInterval,
			UnloadInterval:     pipe.UnloadInterval,
			MaxDispatchPerTick: pipe.MaxDispatchPerTick,
			Viewpoints:         [][3]float32{{0, 100, 0}},
		},
		Server: ServerConfig{LogLevel: "INFO"},
		EventBus: EventBusConfig{
			Stream:    "VOXEL",
			Retention: 1,
			Capacity:  1024,
		},
		Telemetry: TelemetryConfig{ServiceName: "voxelstream"},
		Atlas:     AtlasConfig{Cols: 8, Rows: 8},
	}
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	var errs []error
	if c.Terrain.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("terrain.chunk_size должен быть > 0, получено %d", c.Terrain.ChunkSize))
	}
	if c.Terrain.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("terrain.frequency должна быть > 0, получено %g", c.Terrain.Frequency))
	}
	if c.Terrain.DecorationChance < 0 || c.Terrain.DecorationChance > 1 {
		errs = append(errs, fmt.Errorf("terrain.decoration_chance вне [0,1]: %g", c.Terrain.DecorationChance))
	}
	if c.Pipeline.RenderDistance < 0 {
		errs = append(errs, fmt.Errorf("pipeline.render_distance не может быть отрицательным: %d", c.Pipeline.RenderDistance))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers не может быть отрицательным: %d", c.Pipeline.Workers))
	}
	if c.Pipeline.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.tick_interval должен быть > 0"))
	}
	if c.Pipeline.UnloadInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.unload_interval должен быть > 0"))
	}
	if c.Pipeline.MaxDispatchPerTick < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_dispatch_per_tick не может быть отрицательным"))
	}
	if c.Atlas.Path == "" && c.Atlas.Cols*c.Atlas.Rows < 1 {
		errs = append(errs, fmt.Errorf("atlas: сетка %dx%d пуста", c.Atlas.Cols, c.Atlas.Rows))
	}
	return errors.Join(errs...)
}

// Generator возвращает параметры генератора
func (c *Config) Generator() world.GeneratorConfig {
	return world.GeneratorConfig{
		ChunkSize:        c.Terrain.ChunkSize,
		Seed:             c.Terrain.Seed,
		Octaves:          c.Terrain.Octaves,
		Frequency:        c.Terrain.Frequency,
		SeaLevel:         c.Terrain.SeaLevel,
		DecorationChance: c.Terrain.DecorationChance,
	}
}

// Stream возвращает параметры менеджера чанков
func (c *Config) Stream() stream.Config {
	return stream.Config{
		ChunkSize:          c.Terrain.ChunkSize,
		RenderDistance:     c.Pipeline.RenderDistance,
		TickInterval:       c.Pipeline.TickInterval,
		UnloadInterval:     c.Pipeline.UnloadInterval,
		MaxDispatchPerTick: c.Pipeline.MaxDispatchPerTick,
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает порт метрик; 0 означает общий порт с REST API
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 0)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", берётся ENV VOXEL_CONFIG; если и он пуст — возвращаются дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
