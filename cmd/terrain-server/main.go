package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/voxelstream/internal/api"
	"github.com/annel0/voxelstream/internal/atlas"
	"github.com/annel0/voxelstream/internal/config"
	"github.com/annel0/voxelstream/internal/eventbus"
	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/observability"
	"github.com/annel0/voxelstream/internal/render"
	"github.com/annel0/voxelstream/internal/stream"
	"github.com/annel0/voxelstream/internal/viewer"
	"github.com/annel0/voxelstream/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию VOXEL_CONFIG)")
	flag.Parse()

	logger, err := logging.NewLogger("terrain-server")
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	logging.SetDefaultLogger(logger)
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if level, err := logging.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevels(level, logging.TRACE)
	} else {
		logging.Warn("Неизвестный уровень логирования %q, оставлен INFO", cfg.Server.LogLevel)
	}

	logging.Info("🌍 Запуск сервера рельефа: N=%d, R=%d, seed=%d",
		cfg.Terrain.ChunkSize, cfg.Pipeline.RenderDistance, cfg.Terrain.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		logging.Error("❌ Ошибка инициализации OpenTelemetry: %v", err)
		log.Fatalf("❌ Ошибка инициализации OpenTelemetry: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === АТЛАС ===
	lookup, err := loadAtlas(cfg.Atlas)
	if err != nil {
		logging.Error("❌ Ошибка загрузки атласа: %v", err)
		log.Fatalf("❌ Ошибка загрузки атласа: %v", err)
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := newBus(cfg.EventBus)
	if err != nil {
		logging.Error("❌ Ошибка подключения к шине событий: %v", err)
		log.Fatalf("❌ Ошибка подключения к шине событий: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, reg)
	busMetrics.Start(5 * time.Second)
	if _, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger("eventbus")); err != nil {
		logging.Warn("Не удалось подписать логгер на шину: %v", err)
	}

	codec, err := render.NewCodec()
	if err != nil {
		log.Fatalf("❌ Ошибка создания кодека мешей: %v", err)
	}

	// === ПРОСМОТРЩИК ===
	// Конвейер пишет меши в шину, а хаб получает их оттуда же
	fallback := make(stream.StaticViewpoints, 0, len(cfg.Pipeline.Viewpoints))
	for _, p := range cfg.Pipeline.Viewpoints {
		fallback = append(fallback, mgl32.Vec3(p))
	}
	hub := viewer.NewHub(codec, cfg.Terrain.ChunkSize, fallback, nil)
	forward, err := render.Forward(ctx, bus, codec, hub, nil)
	if err != nil {
		logging.Error("❌ Ошибка подписки просмотрщика на шину: %v", err)
		log.Fatalf("❌ Ошибка подписки просмотрщика на шину: %v", err)
	}

	// === КОНВЕЙЕР ===
	exec := stream.NewPoolExecutor(cfg.Pipeline.Workers)
	renderer := render.NewBusRenderer(bus, codec, cfg.Telemetry.ServiceName, nil)
	manager := stream.NewManager(
		cfg.Stream(),
		world.NewGenerator(cfg.Generator()),
		mesh.NewBuilder(lookup),
		exec,
		renderer,
		stream.WithMetrics(stream.NewMetrics(reg)),
	)

	// === HTTP ===
	apiCfg := api.Config{
		Port:        fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		ServiceName: cfg.Telemetry.ServiceName,
		Pipeline:    manager,
		Viewer:      hub,
		Bus:         bus,
		Registerer:  reg,
	}
	var metricsServer *http.Server
	if port := cfg.Server.GetMetricsPort(); port > 0 {
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("❌ Ошибка сервера метрик: %v", err)
			}
		}()
		logging.Info("   📈 Метрики: http://localhost:%d/metrics", port)
	} else {
		apiCfg.Gatherer = reg
	}
	server := api.NewRestServer(apiCfg)

	go func() {
		if err := server.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
			stop()
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d/api/stats", cfg.Server.GetRESTPort())
	logging.Info("   👁  Просмотрщик: ws://localhost:%d/ws", cfg.Server.GetRESTPort())
	logging.Info("   👷 Воркеров: %d", workersOrDefault(cfg.Pipeline.Workers))

	if err := manager.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("❌ Конвейер остановился с ошибкой: %v", err)
	}
	logging.Info("📡 Получен сигнал завершения, останавливаем сервисы...")

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	hub.Close()
	exec.Stop()
	if err := renderer.Close(shutdownCtx); err != nil {
		logging.Warn("Не все меши отправлены в шину: %v", err)
	}
	forward.Unsubscribe()
	busMetrics.Stop()
	if err := bus.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия шины: %v", err)
	}
	codec.Close()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
	}

	stats := manager.Stats()
	logging.Info("👋 Сервер остановлен: сгенерировано %d единиц, ошибок %d", stats.Completed, stats.Failed)
}

// loadAtlas возвращает таблицу из файла или сетку по индексу материала
func loadAtlas(cfg config.AtlasConfig) (atlas.Lookup, error) {
	if cfg.Path != "" {
		logging.Info("🎨 Атлас: %s", cfg.Path)
		return atlas.LoadTable(cfg.Path)
	}
	logging.Info("🎨 Атлас: сетка %dx%d", cfg.Cols, cfg.Rows)
	return atlas.NewGrid(cfg.Cols, cfg.Rows)
}

// newBus подключается к JetStream, если задан URL, иначе создаёт in-memory шину
func newBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий: in-memory (буфер %d)", cfg.Capacity)
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	}
	logging.Info("📨 Шина событий: JetStream %s, стрим %s", cfg.URL, cfg.Stream)
	return eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
}

func workersOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return stream.DefaultWorkers()
}
