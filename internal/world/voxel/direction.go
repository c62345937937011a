package voxel

import "github.com/annel0/voxelstream/internal/vec"

// Direction — одна из шести граней куба.
// Порядок совпадает с порядком граней в шаблонах геометрии.
type Direction uint8

const (
	NegZ Direction = iota // перед
	PosZ                  // зад
	PosY                  // верх
	NegY                  // низ
	NegX                  // лево
	PosX                  // право

	DirectionCount
)

var directionOffsets = [DirectionCount]vec.Vec3{
	NegZ: {X: 0, Y: 0, Z: -1},
	PosZ: {X: 0, Y: 0, Z: 1},
	PosY: {X: 0, Y: 1, Z: 0},
	NegY: {X: 0, Y: -1, Z: 0},
	NegX: {X: -1, Y: 0, Z: 0},
	PosX: {X: 1, Y: 0, Z: 0},
}

// Offset возвращает единичный вектор направления
func (d Direction) Offset() vec.Vec3 {
	return directionOffsets[d]
}

// Opposite возвращает противоположную грань
func (d Direction) Opposite() Direction {
	switch d {
	case NegZ:
		return PosZ
	case PosZ:
		return NegZ
	case PosY:
		return NegY
	case NegY:
		return PosY
	case NegX:
		return PosX
	default:
		return NegX
	}
}

// DirectionOf находит направление по единичному вектору.
func DirectionOf(off vec.Vec3) (Direction, bool) {
	for d, o := range directionOffsets {
		if o == off {
			return Direction(d), true
		}
	}
	return 0, false
}

func (d Direction) String() string {
	switch d {
	case NegZ:
		return "-z"
	case PosZ:
		return "+z"
	case PosY:
		return "+y"
	case NegY:
		return "-y"
	case NegX:
		return "-x"
	case PosX:
		return "+x"
	default:
		return "?"
	}
}
