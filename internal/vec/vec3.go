package vec

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется как координата чанка (chunk-space) и как позиция вокселя.
type Vec3 struct {
	X int
	Y int
	Z int
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает все компоненты на скаляр
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Chebyshev возвращает расстояние Чебышёва (максимум модулей разностей).
// Куб стриминга задаётся именно этой метрикой.
func (v Vec3) Chebyshev(other Vec3) int {
	return max(absInt(v.X-other.X), absInt(v.Y-other.Y), absInt(v.Z-other.Z))
}

// String нужен для логов: "(x,y,z)"
func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// ChunkOf возвращает координату чанка, содержащего мировую точку pos.
// Деление с округлением вниз, поэтому -0.5 попадает в чанк -1.
func ChunkOf(pos mgl32.Vec3, size int) Vec3 {
	s := float64(size)
	return Vec3{
		X: int(math.Floor(float64(pos.X()) / s)),
		Y: int(math.Floor(float64(pos.Y()) / s)),
		Z: int(math.Floor(float64(pos.Z()) / s)),
	}
}

// ToWorld возвращает мировые координаты начала чанка.
func (v Vec3) ToWorld(size int) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X * size), float32(v.Y * size), float32(v.Z * size)}
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
