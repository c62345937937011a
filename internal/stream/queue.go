package stream

import (
	"sync"
	"time"

	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// unitKind — вид единицы работы
type unitKind uint8

const (
	unitVolume unitKind = iota
	unitMesh
)

func (k unitKind) String() string {
	if k == unitVolume {
		return "volume"
	}
	return "mesh"
}

// result — итог единицы работы. Воркер заполняет его и кладёт в очередь,
// индекс он не трогает.
type result struct {
	kind       unitKind
	coord      vec.Vec3
	ticket     uint64
	volume     *world.Volume
	boundaries [voxel.DirectionCount]*world.Boundary
	mesh       *mesh.Mesh
	err        error
	elapsed    time.Duration
}

// resultQueue — неограниченная очередь результатов.
// Воркеры никогда не блокируются на записи, поэтому исполнитель
// может выполнять задачи прямо в вызывающей горутине.
type resultQueue struct {
	mu    sync.Mutex
	items []result
}

func (q *resultQueue) push(r result) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// drain забирает все накопленные результаты
func (q *resultQueue) drain() []result {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}
