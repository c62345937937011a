package render

import (
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
)

// Multi раздаёт каждый вызов всем рендерерам по порядку
type Multi []Renderer

// Publish реализует Renderer
func (m Multi) Publish(coord vec.Vec3, msh *mesh.Mesh) {
	for _, r := range m {
		r.Publish(coord, msh)
	}
}

// Retract реализует Renderer
func (m Multi) Retract(coord vec.Vec3) {
	for _, r := range m {
		r.Retract(coord)
	}
}
