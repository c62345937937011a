package stream

import (
	"time"

	"github.com/annel0/voxelstream/internal/vec"
)

// Stats — снимок состояния конвейера. Публикуется после каждого тика
// и читается из любых горутин (HTTP API, инструменты).
type Stats struct {
	Tick       time.Time      `json:"tick"`
	Chunks     map[string]int `json:"chunks"`
	Loaded     int            `json:"loaded"`
	InFlight   int64          `json:"in_flight"`
	Published  int            `json:"published"`
	Triangles  int            `json:"triangles"`
	Dispatched uint64         `json:"dispatched"`
	Completed  uint64         `json:"completed"`
	Failed     uint64         `json:"failed"`
	Stale      uint64         `json:"stale"`
	Remeshes   uint64         `json:"remeshes"`
	Unloads    uint64         `json:"unloads"`
	Centers    []vec.Vec3     `json:"centers"`

	// Занятость пула, если исполнитель её сообщает
	WorkersBusy int64  `json:"workers_busy"`
	QueuedTasks uint64 `json:"queued_tasks"`
}

// occupancy реализуют исполнители, умеющие сообщать о загрузке
type occupancy interface {
	Running() int64
	Waiting() uint64
}

// counters — накопительные счётчики управляющей горутины
type counters struct {
	dispatched uint64
	completed  uint64
	failed     uint64
	stale      uint64
	remeshes   uint64
	unloads    uint64
}
