// Package render доставляет готовые меши потребителям: в шину событий,
// в веб-сокеты просмотрщика или сразу в несколько мест.
package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
)

// Размеры элементов бинарного формата
const (
	coordSize    = 3 * 4
	countsSize   = 3 * 4
	positionSize = 3 * 4
	uvSize       = 2 * 4
	indexSize    = 4
)

// ErrCorruptMesh возвращается, если сериализованный меш не читается
var ErrCorruptMesh = errors.New("render: повреждённый меш")

// Codec сериализует меши в little-endian формат:
// coord(3×int32) | zstd(позиций, uv, индексов (3×uint32) | позиции | uv | индексы).
// Координата лежит вне сжатой части, её можно прочитать через MeshCoord.
// Методы безопасны для одновременного вызова.
type Codec struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewCodec создаёт кодек со сжатием zstd
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Codec{compressor: enc, decompressor: dec}, nil
}

// Close освобождает ресурсы zstd
func (c *Codec) Close() {
	c.compressor.Close()
	c.decompressor.Close()
}

// EncodeMesh сериализует и сжимает меш
func (c *Codec) EncodeMesh(m *mesh.Mesh) ([]byte, error) {
	raw := bytes.NewBuffer(make([]byte, 0, countsSize+
		len(m.Positions)*positionSize+len(m.UVs)*uvSize+len(m.Indices)*indexSize))

	counts := [3]uint32{uint32(len(m.Positions)), uint32(len(m.UVs)), uint32(len(m.Indices))}
	for _, part := range []any{counts, m.Positions, m.UVs, m.Indices} {
		if err := binary.Write(raw, binary.LittleEndian, part); err != nil {
			return nil, fmt.Errorf("encode mesh %s: %w", m.Coord, err)
		}
	}

	return c.compressor.EncodeAll(raw.Bytes(), EncodeCoord(m.Coord)), nil
}

// MeshCoord читает координату из меша, записанного EncodeMesh, без распаковки
func MeshCoord(data []byte) (vec.Vec3, error) {
	if len(data) < coordSize {
		return vec.Vec3{}, fmt.Errorf("%w: короткий заголовок (%d байт)", ErrCorruptMesh, len(data))
	}
	return DecodeCoord(data[:coordSize])
}

// DecodeMesh распаковывает меш, записанный EncodeMesh
func (c *Codec) DecodeMesh(data []byte) (*mesh.Mesh, error) {
	coord, err := MeshCoord(data)
	if err != nil {
		return nil, err
	}
	raw, err := c.decompressor.DecodeAll(data[coordSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMesh, err)
	}
	if len(raw) < countsSize {
		return nil, fmt.Errorf("%w: короткий заголовок (%d байт)", ErrCorruptMesh, len(raw))
	}

	var counts [3]uint32
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &counts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMesh, err)
	}

	nPos, nUV, nIdx := int(counts[0]), int(counts[1]), int(counts[2])
	if want := nPos*positionSize + nUV*uvSize + nIdx*indexSize; want != r.Len() {
		return nil, fmt.Errorf("%w: ожидалось %d байт данных, получено %d", ErrCorruptMesh, want, r.Len())
	}

	m := &mesh.Mesh{
		Coord:     coord,
		Positions: make([]mgl32.Vec3, nPos),
		UVs:       make([]mgl32.Vec2, nUV),
		Indices:   make([]uint32, nIdx),
	}
	for _, part := range []any{m.Positions, m.UVs, m.Indices} {
		if err := binary.Read(r, binary.LittleEndian, part); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptMesh, err)
		}
	}
	return m, nil
}

// EncodeCoord записывает координату чанка без сжатия
func EncodeCoord(coord vec.Vec3) []byte {
	buf := make([]byte, coordSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(coord.X)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(coord.Y)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(int32(coord.Z)))
	return buf
}

// DecodeCoord читает координату, записанную EncodeCoord
func DecodeCoord(data []byte) (vec.Vec3, error) {
	if len(data) != coordSize {
		return vec.Vec3{}, fmt.Errorf("render: координата должна занимать %d байт, получено %d", coordSize, len(data))
	}
	return vec.Vec3{
		X: int(int32(binary.LittleEndian.Uint32(data[0:]))),
		Y: int(int32(binary.LittleEndian.Uint32(data[4:]))),
		Z: int(int32(binary.LittleEndian.Uint32(data[8:]))),
	}, nil
}
