package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/annel0/voxelstream/internal/atlas"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// Report — сводка по одному сгенерированному чанку
type Report struct {
	Chunk      vec.Vec3       `json:"chunk"`
	Size       int            `json:"size"`
	Materials  map[string]int `json:"materials"`
	Shapes     map[string]int `json:"shapes"`
	Solid      int            `json:"solid"`
	Neighbors  int            `json:"neighbors"`
	Triangles  int            `json:"triangles"`
	Vertices   int            `json:"vertices"`
	GenerateMS float64        `json:"generate_ms"`
	MeshMS     float64        `json:"mesh_ms"`
}

func main() {
	var (
		x         = flag.Int("x", 0, "координата чанка X")
		y         = flag.Int("y", 3, "координата чанка Y")
		z         = flag.Int("z", 0, "координата чанка Z")
		size      = flag.Int("size", world.DefaultChunkSize, "длина ребра чанка")
		seed      = flag.Int64("seed", 1, "сид генератора")
		sea       = flag.Int("sea", world.DefaultSeaLevel, "уровень моря")
		neighbors = flag.Bool("neighbors", true, "строить меш с учётом шести соседей")
		atlasPath = flag.String("atlas", "", "YAML таблица атласа (по умолчанию сетка 8x8)")
		asJSON    = flag.Bool("json", false, "вывести отчёт в JSON")
	)
	flag.Parse()

	cfg := world.DefaultGeneratorConfig()
	cfg.ChunkSize = *size
	cfg.Seed = *seed
	cfg.SeaLevel = *sea
	// Декорации случайны между запусками, для отчёта они не нужны
	cfg.DecorationChance = 0

	var lookup atlas.Lookup
	var err error
	if *atlasPath != "" {
		lookup, err = atlas.LoadTable(*atlasPath)
	} else {
		lookup, err = atlas.NewGrid(8, 8)
	}
	if err != nil {
		log.Fatalf("❌ Atlas: %v", err)
	}

	report := inspect(world.NewGenerator(cfg), mesh.NewBuilder(lookup), vec.Vec3{X: *x, Y: *y, Z: *z}, *neighbors)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("❌ Encode: %v", err)
		}
		return
	}
	printReport(report)
}

func inspect(gen *world.Generator, builder *mesh.Builder, coord vec.Vec3, withNeighbors bool) Report {
	start := time.Now()
	vol := gen.Generate(coord)
	genElapsed := time.Since(start)

	var ns mesh.NeighborSet
	if withNeighbors {
		for d := voxel.Direction(0); d < voxel.DirectionCount; d++ {
			nb := gen.Generate(coord.Add(d.Offset()))
			ns[d] = nb.Boundary(d.Opposite())
		}
	}

	start = time.Now()
	m := builder.Build(vol, ns)
	meshElapsed := time.Since(start)

	r := Report{
		Chunk:      coord,
		Size:       vol.Size,
		Materials:  make(map[string]int),
		Shapes:     make(map[string]int),
		Neighbors:  ns.Len(),
		Triangles:  m.Triangles(),
		Vertices:   len(m.Positions),
		GenerateMS: float64(genElapsed.Microseconds()) / 1000,
		MeshMS:     float64(meshElapsed.Microseconds()) / 1000,
	}
	for _, v := range vol.Voxels {
		r.Materials[v.Material.String()]++
		if v.IsAir() {
			continue
		}
		r.Shapes[v.Shape.String()]++
		if v.Solid {
			r.Solid++
		}
	}
	return r
}

func printReport(r Report) {
	fmt.Printf("🧊 Chunk %s, %d³ voxels\n", r.Chunk, r.Size)
	fmt.Printf("   generate: %.2fms, mesh: %.2fms (neighbors: %d)\n", r.GenerateMS, r.MeshMS, r.Neighbors)
	fmt.Printf("   solid: %d, triangles: %d, vertices: %d\n", r.Solid, r.Triangles, r.Vertices)

	fmt.Println("\n📊 Materials:")
	printCounts(r.Materials)
	fmt.Println("\n📐 Shapes:")
	printCounts(r.Shapes)
}

// printCounts печатает счётчики по убыванию
func printCounts(counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Printf("   %-16s %d\n", name, counts[name])
	}
}
