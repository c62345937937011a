// Package atlas отображает материалы в прямоугольники текстурного атласа.
package atlas

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxelstream/internal/world/voxel"
)

// Rect — нормализованный UV-прямоугольник тайла в атласе
type Rect struct {
	MinX, MinY float32
	MaxX, MaxY float32
}

// Lerp возвращает точку внутри прямоугольника по относительным координатам (u, v)
func (r Rect) Lerp(u, v float32) (float32, float32) {
	return r.MinX + (r.MaxX-r.MinX)*u, r.MinY + (r.MaxY-r.MinY)*v
}

// Lookup возвращает UV-прямоугольник материала.
// Реализации неизменяемы после создания и безопасны для конкурентного чтения.
type Lookup interface {
	Rect(m voxel.Material) Rect
}

// Grid — атлас из одинаковых тайлов: материал с порядковым номером i
// лежит в тайле i (построчно слева направо, сверху вниз).
type Grid struct {
	columns int
	rows    int
	rects   [voxel.MaterialCount]Rect
}

// NewGrid создаёт атлас-сетку. Сетка должна вмещать все материалы.
func NewGrid(columns, rows int) (*Grid, error) {
	if columns <= 0 || rows <= 0 {
		return nil, fmt.Errorf("недопустимый размер сетки атласа %dx%d", columns, rows)
	}
	if columns*rows < int(voxel.MaterialCount) {
		return nil, fmt.Errorf("сетка атласа %dx%d вмещает %d тайлов, нужно %d",
			columns, rows, columns*rows, voxel.MaterialCount)
	}

	g := &Grid{columns: columns, rows: rows}
	w := 1 / float32(columns)
	h := 1 / float32(rows)
	for i := range g.rects {
		col := i % columns
		row := i / columns
		g.rects[i] = Rect{
			MinX: float32(col) * w,
			MinY: float32(row) * h,
			MaxX: float32(col+1) * w,
			MaxY: float32(row+1) * h,
		}
	}
	return g, nil
}

// Rect реализует Lookup
func (g *Grid) Rect(m voxel.Material) Rect {
	if !m.Valid() {
		panic(fmt.Sprintf("atlas: неизвестный материал %d", m))
	}
	return g.rects[m]
}

// Table — атлас с явными пиксельными прямоугольниками для каждого материала
type Table struct {
	rects [voxel.MaterialCount]Rect
}

// tableFile — формат YAML-файла атласа
type tableFile struct {
	Size      [2]float32            `yaml:"size"`
	Materials map[string][4]float32 `yaml:"materials"`
}

// LoadTable читает атлас из YAML-файла
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла атласа: %w", err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("атлас %s: %w", path, err)
	}
	return t, nil
}

// ParseTable разбирает атлас из YAML. Каждый материал, кроме воздуха,
// обязан иметь прямоугольник: пропуск считается ошибкой конфигурации.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML: %w", err)
	}
	if f.Size[0] <= 0 || f.Size[1] <= 0 {
		return nil, fmt.Errorf("недопустимый размер атласа %vx%v", f.Size[0], f.Size[1])
	}

	t := &Table{}
	seen := make(map[voxel.Material]bool, len(f.Materials))
	for name, px := range f.Materials {
		m, ok := voxel.ParseMaterial(name)
		if !ok {
			return nil, fmt.Errorf("неизвестный материал %q", name)
		}
		t.rects[m] = Rect{
			MinX: px[0] / f.Size[0],
			MinY: px[1] / f.Size[1],
			MaxX: px[2] / f.Size[0],
			MaxY: px[3] / f.Size[1],
		}
		seen[m] = true
	}

	for m := voxel.Material(1); m < voxel.MaterialCount; m++ {
		if !seen[m] {
			return nil, fmt.Errorf("нет прямоугольника для материала %s", m)
		}
	}
	return t, nil
}

// Rect реализует Lookup
func (t *Table) Rect(m voxel.Material) Rect {
	if !m.Valid() {
		panic(fmt.Sprintf("atlas: неизвестный материал %d", m))
	}
	return t.rects[m]
}
