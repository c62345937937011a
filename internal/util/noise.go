package util

import (
	"github.com/aquilax/go-perlin"
)

// Параметры фрактального шума по умолчанию
const (
	DefaultAlpha   = 2.0 // Делитель амплитуды между октавами
	DefaultBeta    = 2.0 // Множитель частоты между октавами
	DefaultOctaves = 4   // Количество октав
)

// Noise — детерминированное фрактальное поле шума Перлина.
// После создания только читается, поэтому один экземпляр
// безопасно использовать из нескольких воркеров.
type Noise struct {
	perlin *perlin.Perlin
	seed   int64
}

// NewNoise создаёт поле шума с указанным сидом и числом октав
func NewNoise(seed int64, octaves int) *Noise {
	if octaves <= 0 {
		octaves = DefaultOctaves
	}
	return &Noise{
		perlin: perlin.NewPerlin(DefaultAlpha, DefaultBeta, int32(octaves), seed),
		seed:   seed,
	}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// Sample2D возвращает значение шума (примерно от -1 до 1)
func (n *Noise) Sample2D(x, y float64) float64 {
	return n.perlin.Noise2D(x, y)
}

// Hash3 — целочисленный хеш (SplitMix64) для детерминированных
// "случайных" решений, привязанных к позиции вокселя.
func Hash3(seed int64, x, y, z int) uint64 {
	v := uint64(seed)*0x9E3779B97F4A7C15 + uint64(int64(x))*0xBF58476D1CE4E5B9
	v ^= uint64(int64(y)) * 0x94D049BB133111EB
	v += uint64(int64(z)) * 0xD6E8FEB86659FD93
	v += 0x9E3779B97F4A7C15
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}
