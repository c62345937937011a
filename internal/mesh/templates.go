package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelstream/internal/world/voxel"
)

// shapeTemplate — геометрия одной формы вокселя в локальном кубе [0,1]³.
// faces[p] перечисляет вершины треугольников грани p (по три на треугольник),
// uvs[p] — доли UV-прямоугольника для тех же вершин.
type shapeTemplate struct {
	verts []mgl32.Vec3
	faces [voxel.DirectionCount][]int
	uvs   [voxel.DirectionCount][]mgl32.Vec2
}

// Направления граней шаблона в порядке перед, зад, верх, низ, лево, право
var templateFaces = [voxel.DirectionCount]voxel.Direction{
	voxel.NegZ, voxel.PosZ, voxel.PosY, voxel.NegY, voxel.NegX, voxel.PosX,
}

var blockVerts = []mgl32.Vec3{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

var slabVerts = []mgl32.Vec3{
	{0, 0, 0}, {1, 0, 0}, {1, 0.5, 0}, {0, 0.5, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 0.5, 1}, {1, 0.5, 1},
}

// Два треугольника на прямоугольную грань
var rectangleTris = [voxel.DirectionCount][]int{
	{0, 3, 1, 1, 3, 2},
	{5, 7, 4, 4, 7, 6},
	{3, 6, 2, 2, 6, 7},
	{1, 5, 0, 0, 5, 4},
	{4, 6, 0, 0, 6, 3},
	{1, 2, 5, 5, 2, 7},
}

// Полный тайл: (max,max) (max,min) (min,max) (min,max) (max,min) (min,min)
var fullFaceUVs = []mgl32.Vec2{{1, 1}, {1, 0}, {0, 1}, {0, 1}, {1, 0}, {0, 0}}

var slabUVs = [voxel.DirectionCount][]mgl32.Vec2{
	{{1, 1}, {1, 0.5}, {0, 1}, {0, 1}, {1, 0.5}, {0, 0.5}},
	{{0, 1}, {0, 0.5}, {1, 1}, {1, 1}, {0, 0.5}, {1, 0.5}},
	{{1, 1}, {1, 0}, {0, 1}, {0, 1}, {1, 0}, {0, 0}},
	{{0, 1}, {0, 0}, {1, 1}, {1, 1}, {0, 0}, {1, 0}},
	{{0, 1}, {0, 0.5}, {1, 1}, {1, 1}, {0, 0.5}, {1, 0.5}},
	{{1, 1}, {1, 0.5}, {0, 1}, {0, 1}, {1, 0.5}, {0, 0.5}},
}

// Ступенька: нижняя половина на всю глубину, верхняя — только задняя половина
var stairVerts = []mgl32.Vec3{
	{0, 0, 0}, {1, 0, 0}, {0, 0.5, 0}, {1, 0.5, 0},
	{0, 0.5, 0.5}, {1, 0.5, 0.5}, {0, 1, 0.5}, {1, 1, 0.5},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

var stairTris = [voxel.DirectionCount][]int{
	{0, 2, 1, 1, 2, 3, 4, 6, 5, 5, 6, 7},
	{9, 11, 8, 8, 11, 10},
	{6, 10, 7, 7, 10, 11, 2, 4, 3, 3, 4, 5},
	{8, 0, 9, 9, 0, 1},
	{8, 10, 0, 0, 4, 2, 4, 10, 6},
	{1, 11, 9, 1, 3, 5, 5, 7, 11},
}

var stairUVs = [voxel.DirectionCount][]mgl32.Vec2{
	{
		{1, 1}, {1, 0.5}, {0, 1}, {0, 1}, {1, 0.5}, {0, 0.5},
		{1, 0.5}, {1, 0}, {0, 0.5}, {0, 0.5}, {1, 0}, {0, 0},
	},
	{{0, 1}, {0, 0}, {1, 1}, {1, 1}, {0, 0}, {1, 0}},
	{
		{1, 0.5}, {1, 0}, {0, 0.5}, {0, 0.5}, {1, 0}, {0, 0},
		{1, 1}, {1, 0.5}, {0, 1}, {0, 1}, {1, 0.5}, {0, 0.5},
	},
	{{1, 0}, {1, 1}, {0, 0}, {0, 0}, {1, 1}, {0, 1}},
	{{0, 1}, {0, 0}, {1, 1}, {1, 1}, {0.5, 0.5}, {1, 0.5}, {0.5, 0.5}, {0, 0}, {0.5, 0}},
	{{1, 1}, {0, 0}, {0, 1}, {1, 1}, {1, 0.5}, {0.5, 0.5}, {0.5, 0.5}, {0.5, 0}, {0, 0}},
}

var templates = [...]shapeTemplate{
	voxel.Block: {
		verts: blockVerts,
		faces: rectangleTris,
		uvs:   [voxel.DirectionCount][]mgl32.Vec2{fullFaceUVs, fullFaceUVs, fullFaceUVs, fullFaceUVs, fullFaceUVs, fullFaceUVs},
	},
	voxel.Slab: {
		verts: slabVerts,
		faces: rectangleTris,
		uvs:   slabUVs,
	},
	voxel.Stair: {
		verts: stairVerts,
		faces: stairTris,
		uvs:   stairUVs,
	},
}

// templateFor возвращает шаблон формы. Неизвестная форма — ошибка программиста.
func templateFor(s voxel.Shape) *shapeTemplate {
	if int(s) >= len(templates) {
		panic("mesh: неизвестная форма вокселя " + s.String())
	}
	return &templates[s]
}

// rotation описывает поворот вокруг вертикальной оси через центр вокселя:
// при swap оси X и Z меняются местами, затем X умножается на sx, Z — на sz.
type rotation struct {
	swap   bool
	sx, sz int
}

var rotations = [...]rotation{
	voxel.Forward:  {swap: false, sx: 1, sz: 1},
	voxel.Backward: {swap: false, sx: -1, sz: -1},
	voxel.Left:     {swap: true, sx: 1, sz: -1},
	voxel.Right:    {swap: true, sx: -1, sz: 1},
}

func rotationFor(r voxel.Rotation) rotation {
	if int(r) >= len(rotations) {
		panic("mesh: неизвестный поворот вокселя " + r.String())
	}
	return rotations[r]
}

// vertex поворачивает вершину шаблона
func (r rotation) vertex(v mgl32.Vec3) mgl32.Vec3 {
	x, z := v.X(), v.Z()
	if r.swap {
		x, z = z, x
	}
	return mgl32.Vec3{
		(x-0.5)*float32(r.sx) + 0.5,
		v.Y(),
		(z-0.5)*float32(r.sz) + 0.5,
	}
}

// direction поворачивает направление грани шаблона
func (r rotation) direction(d voxel.Direction) voxel.Direction {
	off := d.Offset()
	x, z := off.X, off.Z
	if r.swap {
		x, z = z, x
	}
	off.X, off.Z = x*r.sx, z*r.sz
	rotated, _ := voxel.DirectionOf(off)
	return rotated
}
