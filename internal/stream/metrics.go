package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — Prometheus-метрики конвейера чанков
type Metrics struct {
	chunks     *prometheus.GaugeVec
	dispatched *prometheus.CounterVec
	completed  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	stale      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	remeshes   prometheus.Counter
	unloads    prometheus.Counter
	triangles  prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// nil reg означает глобальный регистр Prometheus.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxelstream",
			Name:      "chunks",
			Help:      "Количество чанков в индексе по состояниям.",
		}, []string{"state"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelstream",
			Name:      "units_dispatched_total",
			Help:      "Отправленные воркерам единицы работы.",
		}, []string{"unit"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelstream",
			Name:      "units_completed_total",
			Help:      "Успешно применённые результаты.",
		}, []string{"unit"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelstream",
			Name:      "units_failed_total",
			Help:      "Единицы работы, завершившиеся паникой.",
		}, []string{"unit"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelstream",
			Name:      "units_stale_total",
			Help:      "Результаты, отброшенные как устаревшие.",
		}, []string{"unit"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxelstream",
			Name:      "unit_duration_seconds",
			Help:      "Время выполнения единицы работы.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"unit"}),
		remeshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxelstream",
			Name:      "remeshes_total",
			Help:      "Повторные построения меша из-за смены соседей.",
		}),
		unloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxelstream",
			Name:      "unloads_total",
			Help:      "Выгруженные координаты.",
		}),
		triangles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxelstream",
			Name:      "published_triangles",
			Help:      "Суммарное число треугольников опубликованных мешей.",
		}),
	}

	reg.MustRegister(m.chunks, m.dispatched, m.completed, m.failed, m.stale,
		m.duration, m.remeshes, m.unloads, m.triangles)
	return m
}
