package world

import "sort"

// Interpolation определяет способ интерполяции на отрезке, начинающемся с ключа.
type Interpolation uint8

const (
	InterpolationSmooth Interpolation = iota // Catmull-Rom
	InterpolationLinear
)

// SplineKey — контрольная точка кривой
type SplineKey struct {
	T     float64
	Value float64
	Mode  Interpolation
}

// Spline — кусочная кривая по отсортированным ключам.
// Значения за пределами крайних ключей зажимаются.
type Spline struct {
	keys []SplineKey
}

// NewSpline создаёт кривую; ключи сортируются по T.
func NewSpline(keys ...SplineKey) *Spline {
	k := make([]SplineKey, len(keys))
	copy(k, keys)
	sort.Slice(k, func(i, j int) bool { return k[i].T < k[j].T })
	return &Spline{keys: k}
}

// TerrainSpline — кривая преобразования шума в высоту рельефа.
func TerrainSpline() *Spline {
	return NewSpline(
		SplineKey{T: -1.0, Value: 50, Mode: InterpolationLinear},
		SplineKey{T: 0.3, Value: 100},
		SplineKey{T: 0.4, Value: 150},
		SplineKey{T: 0.55, Value: 154},
		SplineKey{T: 0.8, Value: 158},
	)
}

// Sample возвращает значение кривой в точке t (с зажимом по краям)
func (s *Spline) Sample(t float64) float64 {
	n := len(s.keys)
	switch {
	case n == 0:
		return 0
	case t <= s.keys[0].T:
		return s.keys[0].Value
	case t >= s.keys[n-1].T:
		return s.keys[n-1].Value
	}

	// Первый ключ, у которого T > t; отрезок [i-1, i]
	i := sort.Search(n, func(i int) bool { return s.keys[i].T > t })
	k1 := s.keys[i-1]
	k2 := s.keys[i]
	u := (t - k1.T) / (k2.T - k1.T)

	if k1.Mode == InterpolationLinear {
		return k1.Value + (k2.Value-k1.Value)*u
	}

	// Соседние ключи для касательных; на краях повторяем крайний ключ
	k0 := s.keys[max(i-2, 0)]
	k3 := s.keys[min(i+1, n-1)]
	return catmullRom(k0.Value, k1.Value, k2.Value, k3.Value, u)
}

func catmullRom(p0, p1, p2, p3, u float64) float64 {
	u2 := u * u
	u3 := u2 * u
	return 0.5 * (2*p1 +
		(-p0+p2)*u +
		(2*p0-5*p1+4*p2-p3)*u2 +
		(-p0+3*p1-3*p2+p3)*u3)
}
