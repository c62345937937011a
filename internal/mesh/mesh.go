// Package mesh строит поверхностную геометрию объёма с отсечением
// скрытых граней, в том числе на границах соседних чанков.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// Mesh — список треугольников одного чанка (обход против часовой стрелки).
// Каждый раз строится заново, после публикации не изменяется.
type Mesh struct {
	Coord     vec.Vec3
	Positions []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32
}

// Triangles возвращает количество треугольников
func (m *Mesh) Triangles() int {
	return len(m.Indices) / 3
}

// Empty возвращает true, если в чанке нечего рисовать
func (m *Mesh) Empty() bool {
	return len(m.Indices) == 0
}

// NeighborSet — граничные слои соседей по направлениям.
// neighbors[d] — слой соседа со стороны d, обращённый к этому объёму.
// nil означает, что сосед неизвестен.
type NeighborSet [voxel.DirectionCount]*world.Boundary

// Len возвращает количество известных соседей
func (ns *NeighborSet) Len() int {
	n := 0
	for _, b := range ns {
		if b != nil {
			n++
		}
	}
	return n
}
