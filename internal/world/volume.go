package world

import (
	"fmt"

	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// DefaultChunkSize — длина ребра объёма по умолчанию
const DefaultChunkSize = 32

// Volume представляет плотный куб вокселей одного чанка.
// После генерации не изменяется, поэтому его можно читать
// из любого числа горутин без синхронизации.
type Volume struct {
	Coord  vec.Vec3      // Координаты чанка в chunk-space
	Size   int           // Длина ребра N
	Voxels []voxel.Voxel // Индекс = x*N² + y*N + z
}

// NewVolume создаёт пустой (воздушный) объём
func NewVolume(coord vec.Vec3, size int) *Volume {
	if size <= 0 {
		panic(fmt.Sprintf("world: недопустимый размер чанка %d", size))
	}
	return &Volume{
		Coord:  coord,
		Size:   size,
		Voxels: make([]voxel.Voxel, size*size*size),
	}
}

// Index возвращает линейный индекс ячейки
func (v *Volume) Index(x, y, z int) int {
	return x*v.Size*v.Size + y*v.Size + z
}

// InBounds проверяет, что локальная позиция лежит внутри объёма
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && x < v.Size && y >= 0 && y < v.Size && z >= 0 && z < v.Size
}

// At возвращает воксель по локальным координатам.
// Выход за границы — ошибка программиста.
func (v *Volume) At(x, y, z int) voxel.Voxel {
	if !v.InBounds(x, y, z) {
		panic(fmt.Sprintf("world: позиция (%d,%d,%d) вне объёма %d³", x, y, z, v.Size))
	}
	return v.Voxels[v.Index(x, y, z)]
}

// Set записывает воксель. Используется только генератором и тестами
// до того, как объём отдан в конвейер.
func (v *Volume) Set(x, y, z int, vx voxel.Voxel) {
	if !v.InBounds(x, y, z) {
		panic(fmt.Sprintf("world: позиция (%d,%d,%d) вне объёма %d³", x, y, z, v.Size))
	}
	v.Voxels[v.Index(x, y, z)] = vx
}

// Origin возвращает мировые координаты угла объёма
func (v *Volume) Origin() vec.Vec3 {
	return v.Coord.Scale(v.Size)
}

// Boundary возвращает слой твёрдости на грани dir.
// Соседу со стороны dir нужен именно этот слой.
func (v *Volume) Boundary(dir voxel.Direction) *Boundary {
	n := v.Size
	b := &Boundary{Size: n, Solid: make([]bool, n*n)}

	for a := 0; a < n; a++ {
		for c := 0; c < n; c++ {
			var x, y, z int
			switch dir {
			case voxel.NegX:
				x, y, z = 0, a, c
			case voxel.PosX:
				x, y, z = n-1, a, c
			case voxel.NegY:
				x, y, z = a, 0, c
			case voxel.PosY:
				x, y, z = a, n-1, c
			case voxel.NegZ:
				x, y, z = a, c, 0
			case voxel.PosZ:
				x, y, z = a, c, n-1
			}
			b.Solid[a*n+c] = v.Voxels[v.Index(x, y, z)].Solid
		}
	}
	return b
}

// Boundary — копия флагов твёрдости одного граничного слоя объёма.
// Адресуется двумя оставшимися осями в порядке (x, y, z):
// для граней ±X это (y, z), для ±Y — (x, z), для ±Z — (x, y).
type Boundary struct {
	Size  int
	Solid []bool
}

// SolidAt возвращает твёрдость ячейки слоя
func (b *Boundary) SolidAt(a, c int) bool {
	return b.Solid[a*b.Size+c]
}

// Count возвращает количество твёрдых ячеек слоя
func (b *Boundary) Count() int {
	n := 0
	for _, s := range b.Solid {
		if s {
			n++
		}
	}
	return n
}
