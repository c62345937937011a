package stream

import (
	"runtime"

	"github.com/alitto/pond/v2"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Executor выполняет единицы работы асинхронно
type Executor interface {
	Submit(task func())
}

// PoolExecutor — ограниченный пул воркеров
type PoolExecutor struct {
	pool pond.Pool
}

// NewPoolExecutor создаёт пул. workers <= 0 означает DefaultWorkers().
func NewPoolExecutor(workers int) *PoolExecutor {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &PoolExecutor{pool: pond.NewPool(workers)}
}

// Submit реализует Executor
func (e *PoolExecutor) Submit(task func()) {
	e.pool.Submit(task)
}

// Running возвращает количество занятых воркеров
func (e *PoolExecutor) Running() int64 {
	return e.pool.RunningWorkers()
}

// Waiting возвращает длину очереди задач
func (e *PoolExecutor) Waiting() uint64 {
	return e.pool.WaitingTasks()
}

// Stop дожидается завершения всех задач и останавливает пул
func (e *PoolExecutor) Stop() {
	e.pool.StopAndWait()
}

// DefaultWorkers возвращает число физических ядер (или логических, если их не удалось узнать)
func DefaultWorkers() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
