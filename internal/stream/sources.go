package stream

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
)

// Renderer получает готовые меши. Вызывается только из управляющей горутины.
type Renderer interface {
	// Publish заменяет отображаемый меш координаты новым
	Publish(coord vec.Vec3, m *mesh.Mesh)
	// Retract убирает меш выгруженной координаты
	Retract(coord vec.Vec3)
}

// ViewpointSource сообщает текущие точки наблюдения в мировых координатах
type ViewpointSource interface {
	Viewpoints() []mgl32.Vec3
}

// StaticViewpoints — неподвижный набор точек наблюдения
type StaticViewpoints []mgl32.Vec3

// Viewpoints реализует ViewpointSource
func (s StaticViewpoints) Viewpoints() []mgl32.Vec3 {
	return s
}

// VolumeGenerator строит объём для координаты. Должен быть безопасен
// для вызова из нескольких воркеров одновременно.
type VolumeGenerator interface {
	Generate(coord vec.Vec3) *world.Volume
}

// MeshBuilder строит меш по объёму и снимку границ соседей
type MeshBuilder interface {
	Build(vol *world.Volume, neighbors mesh.NeighborSet) *mesh.Mesh
}

// discardRenderer используется, когда рендерер не задан
type discardRenderer struct{}

func (discardRenderer) Publish(vec.Vec3, *mesh.Mesh) {}
func (discardRenderer) Retract(vec.Vec3)             {}
