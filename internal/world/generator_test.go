package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// fixedRand всегда возвращает одно и то же значение
type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

func testClassifier() Classifier {
	return Classifier{SeaLevel: -1000, Seed: 1}
}

func TestClassifySeaLevelFillsWater(t *testing.T) {
	c := Classifier{SeaLevel: 60, Seed: 1}

	v := c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 60}, Height: 40}, nil)
	assert.Equal(t, voxel.Water, v.Material)
	assert.True(t, v.Solid)
	assert.Equal(t, voxel.Block, v.Shape)

	// Твёрдая ячейка ниже уровня моря становится песком
	v = c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 30}, Height: 40}, nil)
	assert.Equal(t, voxel.Sand, v.Material)
	assert.True(t, v.Solid)

	// Выше моря ничего не меняется
	v = c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 61}, Height: 40}, nil)
	assert.True(t, v.IsAir())
	assert.False(t, v.Solid)
}

func TestClassifyUnderground(t *testing.T) {
	c := testClassifier()

	v := c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 90}, Height: 100}, nil)
	assert.Equal(t, voxel.Stone, v.Material, "глубже 4 блоков всегда камень")
	assert.True(t, v.Solid)

	v = c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 98}, Height: 100}, nil)
	assert.Equal(t, voxel.Dirt, v.Material, "в двух блоках под поверхностью всегда земля")

	v = c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 100}, Height: 100.5}, nil)
	assert.Equal(t, voxel.Grass, v.Material, "верхний слой — твёрдая трава")
	assert.True(t, v.Solid)
	assert.Equal(t, voxel.Block, v.Shape)
}

func TestClassifyDepthThresholdIsDeterministic(t *testing.T) {
	c := testClassifier()

	for y := 95; y < 98; y++ {
		in := ClassifyInput{Pos: vec.Vec3{X: 7, Y: y, Z: -3}, Height: 100}
		first := c.Classify(in, nil)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, c.Classify(in, nil))
		}
		assert.Contains(t, []voxel.Material{voxel.Dirt, voxel.Stone}, first.Material)
	}
}

func TestClassifySurfaceBand(t *testing.T) {
	c := testClassifier()

	in := ClassifyInput{
		Pos:       vec.Vec3{Y: 100},
		Height:    100.1,
		Neighbors: Neighbors{PosX: 100, NegX: 100, PosZ: 103, NegZ: 100},
	}
	v := c.Classify(in, nil)
	assert.Equal(t, voxel.Grass, v.Material)
	assert.False(t, v.Solid, "поверхность не скрывает соседей")
	assert.Equal(t, voxel.Stair, v.Shape)
	assert.Equal(t, voxel.Forward, v.Rotation)
}

func TestSurfaceShape(t *testing.T) {
	tests := []struct {
		name     string
		height   float64
		n        Neighbors
		shape    voxel.Shape
		rotation voxel.Rotation
	}{
		{"подъём по +z", 100, Neighbors{PosX: 100, NegX: 99, PosZ: 102, NegZ: 99}, voxel.Stair, voxel.Forward},
		{"подъём по -z", 100, Neighbors{PosX: 100, NegX: 99, PosZ: 99, NegZ: 102}, voxel.Stair, voxel.Backward},
		{"подъём по +x", 100, Neighbors{PosX: 102, NegX: 99, PosZ: 100, NegZ: 99}, voxel.Stair, voxel.Left},
		{"подъём по -x", 100, Neighbors{PosX: 99, NegX: 102, PosZ: 100, NegZ: 99}, voxel.Stair, voxel.Right},
		{"ничья", 100.4, Neighbors{PosX: 100, NegX: 100, PosZ: 100, NegZ: 100}, voxel.Slab, voxel.Forward},
		{"ничья двух соседей", 98, Neighbors{PosX: 101, NegX: 98, PosZ: 101, NegZ: 97}, voxel.Slab, voxel.Forward},
		{"плоско", 100.1, Neighbors{PosX: 100, NegX: 99, PosZ: 99, NegZ: 99}, voxel.Slab, voxel.Forward},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, rot := SurfaceShape(tt.height, tt.n)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, tt.rotation, rot)
		})
	}
}

func TestClassifyDecoration(t *testing.T) {
	c := Classifier{SeaLevel: -1000, DecorationChance: 0.001}

	v := c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 200}, Height: 100}, fixedRand(0))
	assert.Equal(t, voxel.Glass, v.Material)
	assert.False(t, v.Solid)
	assert.Equal(t, voxel.Block, v.Shape)

	v = c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 200}, Height: 100}, fixedRand(0.5))
	assert.True(t, v.IsAir())

	// Декорации не трогают твёрдые ячейки
	v = c.Classify(ClassifyInput{Pos: vec.Vec3{Y: 50}, Height: 100}, fixedRand(0))
	assert.True(t, v.Solid)
}

func TestHeightModelRounding(t *testing.T) {
	hm := NewHeightModel(1, 4, DefaultFrequency)

	for x := -50; x < 50; x += 7 {
		h := hm.Height(x, x*3)
		assert.InDelta(t, h*10, float64(int64(h*10+0.5*sign(h))), 1e-6, "высота округлена до десятых")
		assert.GreaterOrEqual(t, h, 50.0)
		assert.LessOrEqual(t, h, 158.0)

		n := hm.Neighbors(x, x*3)
		for _, v := range []float64{n.PosX, n.NegX, n.PosZ, n.NegZ} {
			assert.Equal(t, float64(int64(v)), v, "высоты соседей целые")
		}
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.ChunkSize = 8
	cfg.DecorationChance = 0

	coord := vec.Vec3{X: 2, Y: 13, Z: -1}
	a := NewGenerator(cfg).Generate(coord)
	b := NewGenerator(cfg).Generate(coord)

	require.Equal(t, coord, a.Coord)
	assert.Equal(t, a.Voxels, b.Voxels)
}

func TestGenerateMatchesClassifier(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.ChunkSize = 8
	cfg.DecorationChance = 0
	g := NewGenerator(cfg)

	coord := vec.Vec3{X: -1, Y: 12, Z: 3}
	vol := g.Generate(coord)
	origin := vol.Origin()
	c := Classifier{SeaLevel: cfg.SeaLevel, Seed: cfg.Seed}

	for x := 0; x < cfg.ChunkSize; x++ {
		for y := 0; y < cfg.ChunkSize; y++ {
			for z := 0; z < cfg.ChunkSize; z++ {
				wx, wy, wz := origin.X+x, origin.Y+y, origin.Z+z
				in := ClassifyInput{
					Pos:       vec.Vec3{X: wx, Y: wy, Z: wz},
					Height:    g.Heights().Height(wx, wz),
					Neighbors: g.Heights().Neighbors(wx, wz),
				}
				require.Equal(t, c.Classify(in, nil), vol.At(x, y, z), "ячейка (%d,%d,%d)", x, y, z)
			}
		}
	}
}

func TestGenerateDeepChunkIsSolid(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.ChunkSize = 8
	vol := NewGenerator(cfg).Generate(vec.Vec3{Y: 2})

	// y от 16 до 23: ниже минимальной высоты рельефа и ниже моря
	for _, v := range vol.Voxels {
		require.True(t, v.Solid)
		require.Equal(t, voxel.Sand, v.Material)
	}
}

func TestGenerateSkyIsEmpty(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.ChunkSize = 8
	cfg.DecorationChance = 0
	vol := NewGenerator(cfg).Generate(vec.Vec3{Y: 40})

	for _, v := range vol.Voxels {
		require.True(t, v.IsAir())
	}
}
