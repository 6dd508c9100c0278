package mdl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/flywave/go3d/vec3"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Vertex codec errors.
var (
	ErrUnknownVertexType = errors.New("unknown vertex type")
	ErrShortVertexData   = errors.New("vertex data shorter than element")
)

// VertexType is the binary representation of one vertex element.
type VertexType uint8

// Supported element representations.
const (
	VertexTypeFloat3          VertexType = 2
	VertexTypeFloat4          VertexType = 3
	VertexTypeUInt4x8         VertexType = 5
	VertexTypeNormalizedByte4 VertexType = 8
	VertexTypeHalf2           VertexType = 13
	VertexTypeHalf4           VertexType = 14
)

// Size returns the encoded byte size, or 0 for unknown types.
func (t VertexType) Size() int {
	switch t {
	case VertexTypeFloat3:
		return 12
	case VertexTypeFloat4:
		return 16
	case VertexTypeUInt4x8, VertexTypeNormalizedByte4, VertexTypeHalf2:
		return 4
	case VertexTypeHalf4:
		return 8
	default:
		return 0
	}
}

// String returns a human-readable type name.
func (t VertexType) String() string {
	switch t {
	case VertexTypeFloat3:
		return "Float3"
	case VertexTypeFloat4:
		return "Float4"
	case VertexTypeUInt4x8:
		return "UInt4x8"
	case VertexTypeNormalizedByte4:
		return "NormalizedByte4"
	case VertexTypeHalf2:
		return "Half2"
	case VertexTypeHalf4:
		return "Half4"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// VertexUsage is the semantic of one vertex element.
type VertexUsage uint8

// Element semantics.
const (
	UsagePosition     VertexUsage = 0
	UsageBlendWeights VertexUsage = 1
	UsageBlendIndices VertexUsage = 2
	UsageNormal       VertexUsage = 3
	UsageUV           VertexUsage = 4
	UsageTangent2     VertexUsage = 5
	UsageTangent1     VertexUsage = 6
	UsageColor        VertexUsage = 7
)

// String returns a human-readable usage name.
func (u VertexUsage) String() string {
	switch u {
	case UsagePosition:
		return "Position"
	case UsageBlendWeights:
		return "BlendWeights"
	case UsageBlendIndices:
		return "BlendIndices"
	case UsageNormal:
		return "Normal"
	case UsageUV:
		return "UV"
	case UsageTangent2:
		return "Tangent2"
	case UsageTangent1:
		return "Tangent1"
	case UsageColor:
		return "Color"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(u))
	}
}

// AppendVertexValue encodes v as type t and appends it to dst.
// Components beyond the type's width are ignored.
func AppendVertexValue(dst []byte, t VertexType, v [4]float32) ([]byte, error) {
	switch t {
	case VertexTypeFloat3:
		for i := 0; i < 3; i++ {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v[i]))
		}
	case VertexTypeFloat4:
		for i := 0; i < 4; i++ {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v[i]))
		}
	case VertexTypeUInt4x8:
		for i := 0; i < 4; i++ {
			dst = append(dst, uint8(clamp(roundHalfAway(v[i]), 0, 255)))
		}
	case VertexTypeNormalizedByte4:
		for i := 0; i < 4; i++ {
			dst = append(dst, UnitToByte(v[i]))
		}
	case VertexTypeHalf2:
		for i := 0; i < 2; i++ {
			dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(v[i]).Bits())
		}
	case VertexTypeHalf4:
		for i := 0; i < 4; i++ {
			dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(v[i]).Bits())
		}
	default:
		return dst, fmt.Errorf("%w: %d", ErrUnknownVertexType, uint8(t))
	}
	return dst, nil
}

// DecodeVertexValue decodes one element of type t from the front of src.
// Missing components decode as zero.
func DecodeVertexValue(src []byte, t VertexType) ([4]float32, error) {
	var v [4]float32
	size := t.Size()
	if size == 0 {
		return v, fmt.Errorf("%w: %d", ErrUnknownVertexType, uint8(t))
	}
	if len(src) < size {
		return v, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortVertexData, t, size, len(src))
	}

	switch t {
	case VertexTypeFloat3, VertexTypeFloat4:
		for i := 0; i < size/4; i++ {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case VertexTypeUInt4x8:
		for i := 0; i < 4; i++ {
			v[i] = float32(src[i])
		}
	case VertexTypeNormalizedByte4:
		for i := 0; i < 4; i++ {
			v[i] = ByteToUnit(src[i])
		}
	case VertexTypeHalf2, VertexTypeHalf4:
		for i := 0; i < size/2; i++ {
			v[i] = float16.Frombits(binary.LittleEndian.Uint16(src[i*2:])).Float32()
		}
	}
	return v, nil
}

// UnitToByte maps [0,1] to [0,255], clamping and rounding half away from zero.
func UnitToByte(x float32) uint8 {
	return uint8(roundHalfAway(clamp(x, 0, 1) * 255))
}

// ByteToUnit maps [0,255] back to [0,1].
func ByteToUnit(b uint8) float32 {
	return float32(b) / 255
}

// PackTangent converts a tangent with handedness in W to the value written
// as a NormalizedByte4 element: xyz of the unit tangent mapped by (v+1)/2,
// and W replaced by an inverted handedness flag (0 positive, 1 negative).
func PackTangent(t [4]float32) [4]float32 {
	dir := vec3.T{t[0], t[1], t[2]}
	if dir.Length() > 0 {
		dir = dir.Normalized()
	}
	var flag float32
	if t[3] < 0 {
		flag = 1
	}
	return [4]float32{
		(dir[0] + 1) / 2,
		(dir[1] + 1) / 2,
		(dir[2] + 1) / 2,
		flag,
	}
}

// UnpackTangent inverts PackTangent on decoded NormalizedByte4 values.
func UnpackTangent(v [4]float32) [4]float32 {
	w := float32(1)
	if v[3] >= 0.5 {
		w = -1
	}
	return [4]float32{v[0]*2 - 1, v[1]*2 - 1, v[2]*2 - 1, w}
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundHalfAway[T constraints.Float](v T) T {
	return T(math.Round(float64(v)))
}
