package world

import (
	"math"
	"math/rand"
	"time"

	"github.com/annel0/voxelstream/internal/util"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// Константы генерации
const (
	DefaultSeaLevel         = 60
	DefaultFrequency        = 0.002 // Горизонтальная частота шума
	DefaultDecorationChance = 0.001 // Шанс превращения воздуха в стекло

	SurfaceBand = 0.2 // Полуширина поверхностного слоя
)

// GeneratorConfig содержит параметры генерации рельефа
type GeneratorConfig struct {
	ChunkSize        int
	Seed             int64
	Octaves          int
	Frequency        float64
	SeaLevel         int
	DecorationChance float64
}

// DefaultGeneratorConfig возвращает параметры, с которыми мир выглядит "как задумано"
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		ChunkSize:        DefaultChunkSize,
		Seed:             1,
		Octaves:          util.DefaultOctaves,
		Frequency:        DefaultFrequency,
		SeaLevel:         DefaultSeaLevel,
		DecorationChance: DefaultDecorationChance,
	}
}

// Rand — источник случайности для декораций.
// *rand.Rand подходит без обёрток.
type Rand interface {
	Float64() float64
}

// HeightModel отображает горизонтальную точку в высоту рельефа.
// Чистая функция от (seed, x, z).
type HeightModel struct {
	noise     *util.Noise
	spline    *Spline
	frequency float64
}

// NewHeightModel создаёт модель высот
func NewHeightModel(seed int64, octaves int, frequency float64) *HeightModel {
	if frequency <= 0 {
		frequency = DefaultFrequency
	}
	return &HeightModel{
		noise:     util.NewNoise(seed, octaves),
		spline:    TerrainSpline(),
		frequency: frequency,
	}
}

func (hm *HeightModel) sample(x, z int) float64 {
	n := hm.noise.Sample2D(float64(x)*hm.frequency, float64(z)*hm.frequency)
	return hm.spline.Sample(n)
}

// Height возвращает высоту колонки, округлённую до десятых
func (hm *HeightModel) Height(x, z int) float64 {
	return math.Round(hm.sample(x, z)*10) / 10
}

// Neighbors возвращает высоты четырёх соседних колонок (округлённые до целых)
func (hm *HeightModel) Neighbors(x, z int) Neighbors {
	return Neighbors{
		PosX: math.Round(hm.sample(x+1, z)),
		NegX: math.Round(hm.sample(x-1, z)),
		PosZ: math.Round(hm.sample(x, z+1)),
		NegZ: math.Round(hm.sample(x, z-1)),
	}
}

// Neighbors — высоты колонок по четырём сторонам света
type Neighbors struct {
	PosX, NegX, PosZ, NegZ float64
}

// SurfaceShape выбирает форму и поворот поверхностного вокселя по уклону.
// Ступенька смотрит в сторону самого высокого соседа; если максимум
// делят два и более соседа или рельеф плоский — полублок без поворота.
func SurfaceShape(height float64, n Neighbors) (voxel.Shape, voxel.Rotation) {
	top := max(n.PosX, n.NegX, n.PosZ, n.NegZ)

	ties := 0
	for _, h := range [...]float64{n.PosX, n.NegX, n.PosZ, n.NegZ} {
		if h == top {
			ties++
		}
	}
	if ties >= 2 || math.Abs(top-height) < SurfaceBand {
		return voxel.Slab, voxel.Forward
	}

	switch top {
	case n.PosZ:
		return voxel.Stair, voxel.Forward
	case n.NegZ:
		return voxel.Stair, voxel.Backward
	case n.PosX:
		return voxel.Stair, voxel.Left
	default:
		return voxel.Stair, voxel.Right
	}
}

// InSurfaceBand проверяет попадание в поверхностный слой |y - h| < 0.2
func InSurfaceBand(y int, height float64) bool {
	return math.Abs(float64(y)-height) < SurfaceBand
}

// ClassifyInput — всё, что нужно классификатору для одной ячейки
type ClassifyInput struct {
	Pos       vec.Vec3  // Абсолютная позиция вокселя
	Height    float64   // Высота колонки
	Neighbors Neighbors // Нужны только в поверхностном слое
}

// Classifier превращает позицию и высоты в воксель.
// Правила применяются по порядку, поздние перезаписывают ранние.
type Classifier struct {
	SeaLevel         int
	Seed             int64
	DecorationChance float64
}

// Classify возвращает воксель для ячейки
func (c Classifier) Classify(in ClassifyInput, rng Rand) voxel.Voxel {
	var v voxel.Voxel
	y := float64(in.Pos.Y)
	h := in.Height

	switch {
	case InSurfaceBand(in.Pos.Y, h):
		v.Shape, v.Rotation = SurfaceShape(h, in.Neighbors)
		v.Material = voxel.Grass
		v.Solid = false

	case y < h:
		v.Material = voxel.Dirt
		v.Solid = true
		if y < h-float64(c.depthThreshold(in.Pos)) {
			v.Material = voxel.Stone
		}
		if y > h-1 {
			v.Material = voxel.Grass
		}
	}

	// Уровень моря
	if in.Pos.Y <= c.SeaLevel {
		v.Shape = voxel.Block
		if !v.Solid {
			v.Solid = true
			v.Material = voxel.Water
		} else {
			v.Material = voxel.Sand
		}
	}

	// Редкие декоративные блоки в воздухе
	if v.Material == voxel.Air && rng != nil && rng.Float64() < c.DecorationChance {
		v.Material = voxel.Glass
		v.Solid = false
		v.Shape = voxel.Block
	}

	return v
}

// depthThreshold — глубина перехода земли в камень, от 2 до 4.
// Берётся из хеша позиции, чтобы форма рельефа оставалась воспроизводимой.
func (c Classifier) depthThreshold(pos vec.Vec3) int {
	return 2 + int(util.Hash3(c.Seed, pos.X, pos.Y, pos.Z)%3)
}

// Generator генерирует объёмы чанков
type Generator struct {
	size       int
	heights    *HeightModel
	classifier Classifier
	newRand    func(coord vec.Vec3) Rand
}

// NewGenerator создаёт генератор. Безопасен для одновременного
// использования из нескольких воркеров.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Generator{
		size:    cfg.ChunkSize,
		heights: NewHeightModel(cfg.Seed, cfg.Octaves, cfg.Frequency),
		classifier: Classifier{
			SeaLevel:         cfg.SeaLevel,
			Seed:             cfg.Seed,
			DecorationChance: cfg.DecorationChance,
		},
		newRand: defaultRand,
	}
}

// defaultRand даёт каждому вызову свой источник: расстановка декораций
// не обязана повторяться между запусками.
func defaultRand(coord vec.Vec3) Rand {
	seed := time.Now().UnixNano() ^ int64(util.Hash3(0, coord.X, coord.Y, coord.Z))
	return rand.New(rand.NewSource(seed))
}

// ChunkSize возвращает длину ребра генерируемых объёмов
func (g *Generator) ChunkSize() int {
	return g.size
}

// Heights возвращает модель высот генератора
func (g *Generator) Heights() *HeightModel {
	return g.heights
}

// column кеширует выборки одной колонки (x, z)
type column struct {
	height       float64
	neighbors    Neighbors
	hasNeighbors bool
}

// Generate генерирует объём для координаты чанка
func (g *Generator) Generate(coord vec.Vec3) *Volume {
	n := g.size
	vol := NewVolume(coord, n)
	origin := vol.Origin()
	rng := g.newRand(coord)

	cols := make([]column, n)
	idx := 0
	for x := 0; x < n; x++ {
		wx := origin.X + x

		// Высоты колонок считаем один раз на x, а не на каждый y
		for z := 0; z < n; z++ {
			cols[z] = column{height: g.heights.Height(wx, origin.Z+z)}
		}

		for y := 0; y < n; y++ {
			wy := origin.Y + y
			for z := 0; z < n; z++ {
				col := &cols[z]
				in := ClassifyInput{
					Pos:    vec.Vec3{X: wx, Y: wy, Z: origin.Z + z},
					Height: col.height,
				}
				if InSurfaceBand(wy, col.height) {
					if !col.hasNeighbors {
						col.neighbors = g.heights.Neighbors(wx, origin.Z+z)
						col.hasNeighbors = true
					}
					in.Neighbors = col.neighbors
				}
				vol.Voxels[idx] = g.classifier.Classify(in, rng)
				idx++
			}
		}
	}

	return vol
}
