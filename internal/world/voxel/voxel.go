package voxel

import "fmt"

// Material определяет тип материала вокселя.
// Порядок значений стабилен: он же индекс тайла в атласе по умолчанию.
type Material uint8

// Константы материалов
const (
	Air Material = iota // 0 - пустота, значение по умолчанию
	Stone
	Dirt
	Sand
	Brick
	Grass
	Lava
	Water
	Salt
	Ash
	RedSand
	Coral
	Sulfur
	JungleGrass
	SavannahGrass
	SwampGrass
	Ice
	SnowBlock
	Snow
	Pine
	Forest
	Glass
	Sexy
	Rainbow
	StoneBrick
	Arrow
	Netherack
	Arsenic
	Actinium
	Antimony
	Aluminum
	Copper
	Cat

	MaterialCount // всегда последний: количество материалов
)

var materialNames = [MaterialCount]string{
	Air:           "air",
	Stone:         "stone",
	Dirt:          "dirt",
	Sand:          "sand",
	Brick:         "brick",
	Grass:         "grass",
	Lava:          "lava",
	Water:         "water",
	Salt:          "salt",
	Ash:           "ash",
	RedSand:       "red_sand",
	Coral:         "coral",
	Sulfur:        "sulfur",
	JungleGrass:   "jungle_grass",
	SavannahGrass: "savannah_grass",
	SwampGrass:    "swamp_grass",
	Ice:           "ice",
	SnowBlock:     "snow_block",
	Snow:          "snow",
	Pine:          "pine",
	Forest:        "forest",
	Glass:         "glass",
	Sexy:          "sexy",
	Rainbow:       "rainbow",
	StoneBrick:    "stone_brick",
	Arrow:         "arrow",
	Netherack:     "netherack",
	Arsenic:       "arsenic",
	Actinium:      "actinium",
	Antimony:      "antimony",
	Aluminum:      "aluminum",
	Copper:        "copper",
	Cat:           "cat",
}

// String возвращает имя материала (используется в атласе и конфиге)
func (m Material) String() string {
	if m < MaterialCount {
		return materialNames[m]
	}
	return fmt.Sprintf("material(%d)", uint8(m))
}

// Valid проверяет, что материал входит в закрытый список
func (m Material) Valid() bool {
	return m < MaterialCount
}

// ParseMaterial ищет материал по имени
func ParseMaterial(name string) (Material, bool) {
	for i, n := range materialNames {
		if n == name {
			return Material(i), true
		}
	}
	return Air, false
}

// Shape определяет форму вокселя и, как следствие, шаблон геометрии.
type Shape uint8

const (
	Block Shape = iota // Полный блок
	Slab               // Полублок
	Stair              // Ступенька
)

func (s Shape) String() string {
	switch s {
	case Block:
		return "block"
	case Slab:
		return "slab"
	case Stair:
		return "stair"
	default:
		return "unknown"
	}
}

// Rotation — один из четырёх горизонтальных поворотов.
// Вертикальная ось никогда не отражается.
type Rotation uint8

const (
	Forward Rotation = iota
	Backward
	Left
	Right
)

func (r Rotation) String() string {
	switch r {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Voxel — значение одной ячейки объёма. Нулевое значение = воздух.
type Voxel struct {
	Material Material
	Solid    bool // хранится явно, а не выводится из материала
	Shape    Shape
	Rotation Rotation
}

// IsAir возвращает true для пустой ячейки
func (v Voxel) IsAir() bool {
	return v.Material == Air
}
