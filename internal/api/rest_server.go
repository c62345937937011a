package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxelstream/internal/eventbus"
	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/middleware"
	"github.com/annel0/voxelstream/internal/stream"
)

// StatsProvider отдаёт снимок конвейера (реализуется stream.Manager)
type StatsProvider interface {
	Stats() stream.Stats
}

// RestServer представляет HTTP API сервера рельефа
type RestServer struct {
	router   *gin.Engine
	server   *http.Server
	pipeline StatsProvider
	bus      eventbus.EventBus
	metrics  *ServerMetrics
	logger   *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port        string                // адрес для запуска сервера, ":8088"
	ServiceName string                // имя сервиса для otelgin и метрик
	Pipeline    StatsProvider         // обязательный
	Viewer      http.Handler          // веб-сокет просмотрщика; nil = /ws не регистрируется
	Bus         eventbus.EventBus     // nil = без статистики шины
	Registerer  prometheus.Registerer // куда регистрировать HTTP-метрики
	Gatherer    prometheus.Gatherer   // откуда отдавать /metrics; nil = не регистрировать /metrics
	Logger      *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.ServiceName == "" {
		config.ServiceName = "voxelstream"
	}
	if config.Logger == nil {
		config.Logger = logging.GetServerLogger()
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware(config.ServiceName, config.Registerer)
	router.Use(promMw.Handler())
	if config.Gatherer != nil {
		promMw.RegisterMetricsEndpoint(router, config.Gatherer)
	}

	rs := &RestServer{
		router:   router,
		pipeline: config.Pipeline,
		bus:      config.Bus,
		metrics:  NewServerMetrics(),
		logger:   config.Logger,
	}
	rs.server = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes(config.Viewer)
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes(viewer http.Handler) {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/chunks", rs.handleChunks)
		api.GET("/server", rs.handleServerInfo)
	}

	if viewer != nil {
		rs.router.GET("/ws", gin.WrapH(viewer))
	}

	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает корневой обработчик (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleStats возвращает снимок конвейера и метрики процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"pipeline": rs.pipeline.Stats(),
	}

	if rs.bus != nil {
		stats["eventbus"] = rs.bus.Metrics()
	}

	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, err := rs.metrics.GetCPUUsage()
	if err != nil {
		rs.logger.Debug("CPU процесса недоступен: %v", err)
	}

	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
		"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
		"server_time": time.Now().Unix(),
	}
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleChunks возвращает количество чанков по состояниям.
// ?state=mesh_ready сужает ответ до одного состояния.
func (rs *RestServer) handleChunks(c *gin.Context) {
	snapshot := rs.pipeline.Stats()

	if state := c.Query("state"); state != "" {
		count, ok := snapshot.Chunks[state]
		if !ok {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неизвестное состояние: " + state,
			})
			return
		}
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Количество чанков",
			Data:    map[string]int{state: count},
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Количество чанков",
		Data: map[string]interface{}{
			"states":    snapshot.Chunks,
			"loaded":    snapshot.Loaded,
			"published": snapshot.Published,
			"triangles": snapshot.Triangles,
			"centers":   snapshot.Centers,
		},
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data: map[string]interface{}{
			"name":      "voxelstream terrain server",
			"status":    "running",
			"uptime":    rs.metrics.GetUptime(),
			"memory_mb": fmt.Sprintf("%.1f", memoryMB),
		},
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}
