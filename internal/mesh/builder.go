package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelstream/internal/atlas"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// Face описывает решение о видимости одной грани шаблона
type Face struct {
	Local   vec.Vec3        // Позиция вокселя внутри объёма
	Voxel   voxel.Voxel     // Сам воксель
	Index   int             // Номер грани шаблона (0..5)
	Dir     voxel.Direction // Направление грани после поворота
	Visible bool
}

// Builder строит меши. Не хранит состояния между вызовами,
// поэтому один экземпляр обслуживает все воркеры.
type Builder struct {
	atlas atlas.Lookup
}

// NewBuilder создаёт построитель с указанным атласом
func NewBuilder(lookup atlas.Lookup) *Builder {
	return &Builder{atlas: lookup}
}

// VisitFaces обходит все грани всех непустых вокселей и сообщает,
// видна ли грань. Build использует ровно это решение.
func (b *Builder) VisitFaces(vol *world.Volume, neighbors NeighborSet, fn func(Face)) {
	n := vol.Size
	idx := 0
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				v := vol.Voxels[idx]
				idx++
				if v.IsAir() {
					continue
				}

				rot := rotationFor(v.Rotation)
				local := vec.Vec3{X: x, Y: y, Z: z}
				for p, face := range templateFaces {
					dir := rot.direction(face)
					fn(Face{
						Local:   local,
						Voxel:   v,
						Index:   p,
						Dir:     dir,
						Visible: faceVisible(vol, &neighbors, local, dir),
					})
				}
			}
		}
	}
}

// faceVisible решает, видна ли грань вокселя local в направлении dir
func faceVisible(vol *world.Volume, neighbors *NeighborSet, local vec.Vec3, dir voxel.Direction) bool {
	p := local.Add(dir.Offset())
	if vol.InBounds(p.X, p.Y, p.Z) {
		return !vol.Voxels[vol.Index(p.X, p.Y, p.Z)].Solid
	}

	boundary := neighbors[dir]
	if boundary == nil {
		// Сосед ещё не загружен: рисуем, пока он не появится
		return true
	}

	// Ячейка соседа лежит у его противоположной грани; две оставшиеся оси совпадают
	switch dir {
	case voxel.NegX, voxel.PosX:
		return !boundary.SolidAt(p.Y, p.Z)
	case voxel.NegY, voxel.PosY:
		return !boundary.SolidAt(p.X, p.Z)
	default:
		return !boundary.SolidAt(p.X, p.Y)
	}
}

// Build строит меш объёма с учётом известных соседей
func (b *Builder) Build(vol *world.Volume, neighbors NeighborSet) *Mesh {
	m := &Mesh{Coord: vol.Coord}
	origin := vol.Origin()
	base := mgl32.Vec3{float32(origin.X), float32(origin.Y), float32(origin.Z)}

	b.VisitFaces(vol, neighbors, func(f Face) {
		if !f.Visible {
			return
		}

		tpl := templateFor(f.Voxel.Shape)
		rot := rotationFor(f.Voxel.Rotation)
		rect := b.atlas.Rect(f.Voxel.Material)
		offset := base.Add(mgl32.Vec3{float32(f.Local.X), float32(f.Local.Y), float32(f.Local.Z)})

		uvs := tpl.uvs[f.Index]
		for i, vi := range tpl.faces[f.Index] {
			m.Positions = append(m.Positions, rot.vertex(tpl.verts[vi]).Add(offset))
			u, v := rect.Lerp(uvs[i].X(), uvs[i].Y())
			m.UVs = append(m.UVs, mgl32.Vec2{u, v})
			m.Indices = append(m.Indices, uint32(len(m.Positions)-1))
		}
	})

	return m
}
