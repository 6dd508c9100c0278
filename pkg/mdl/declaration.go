package mdl

import "fmt"

// streamTerminator ends the element list of a declaration.
const streamTerminator = 0xFF

// VertexElement is one 8-byte entry of a vertex declaration.
type VertexElement struct {
	Stream     uint8
	Offset     uint8
	Type       VertexType
	Usage      VertexUsage
	UsageIndex uint8
	_          [3]byte
}

// VertexDeclaration is the ordered element list of one mesh.
type VertexDeclaration struct {
	Elements []VertexElement
}

// Element returns the first element with the given usage.
func (d VertexDeclaration) Element(usage VertexUsage) (VertexElement, bool) {
	for _, e := range d.Elements {
		if e.Usage == usage {
			return e, true
		}
	}
	return VertexElement{}, false
}

// Strides returns the per-stream byte stride.
func (d VertexDeclaration) Strides() [MaxStreams]uint8 {
	var strides [MaxStreams]uint8
	for _, e := range d.Elements {
		if int(e.Stream) >= MaxStreams {
			continue
		}
		end := int(e.Offset) + e.Type.Size()
		if end > int(strides[e.Stream]) {
			strides[e.Stream] = uint8(end)
		}
	}
	return strides
}

// StreamCount returns one past the highest stream holding an element.
func (d VertexDeclaration) StreamCount() int {
	count := 0
	for _, e := range d.Elements {
		if int(e.Stream)+1 > count && int(e.Stream) < MaxStreams {
			count = int(e.Stream) + 1
		}
	}
	return count
}

// GeometryKind selects the positional attributes of a layout.
type GeometryKind uint8

// Geometry kinds.
const (
	GeometryPositionOnly GeometryKind = iota
	GeometryPositionNormal
	GeometryPositionNormalTangent
)

// MaterialKind selects the shading attributes of a layout.
type MaterialKind uint8

// Material kinds.
const (
	MaterialNone MaterialKind = iota
	MaterialColor1
	MaterialTexture1
	MaterialColor1Texture1
)

// Layout is one member of the closed set of vertex layouts the writer emits.
type Layout struct {
	Geometry GeometryKind
	Material MaterialKind
	Skinned  bool
}

// String returns a compact layout name such as "PositionNormal/Texture1/Skinned".
func (l Layout) String() string {
	geom := [...]string{"PositionOnly", "PositionNormal", "PositionNormalTangent"}
	mat := [...]string{"None", "Color1", "Texture1", "Color1Texture1"}
	g, m := "?", "?"
	if int(l.Geometry) < len(geom) {
		g = geom[l.Geometry]
	}
	if int(l.Material) < len(mat) {
		m = mat[l.Material]
	}
	if l.Skinned {
		return fmt.Sprintf("%s/%s/Skinned", g, m)
	}
	return fmt.Sprintf("%s/%s", g, m)
}

// LayoutOf chooses the layout holding exactly the given attributes.
// A tangent without a normal is dropped.
func LayoutOf(normal, tangent, color, uv, skinned bool) Layout {
	l := Layout{Skinned: skinned}
	switch {
	case normal && tangent:
		l.Geometry = GeometryPositionNormalTangent
	case normal:
		l.Geometry = GeometryPositionNormal
	default:
		l.Geometry = GeometryPositionOnly
	}
	switch {
	case color && uv:
		l.Material = MaterialColor1Texture1
	case color:
		l.Material = MaterialColor1
	case uv:
		l.Material = MaterialTexture1
	default:
		l.Material = MaterialNone
	}
	return l
}

// Has reports whether the layout carries usage.
func (l Layout) Has(usage VertexUsage) bool {
	_, ok := l.Declaration().Element(usage)
	return ok
}

// Declaration returns the declaration for the layout.
func (l Layout) Declaration() VertexDeclaration {
	if d, ok := layoutTable[l]; ok {
		return d
	}
	return layoutTable[Layout{}]
}

// layoutTable is built once from the fixed per-stream element order:
// stream 0 holds Position, BlendWeights, BlendIndices; stream 1 holds
// Normal, Tangent1, Color, UV.
var layoutTable = buildLayoutTable()

type layoutSlot struct {
	stream uint8
	usage  VertexUsage
	typ    VertexType
	want   func(Layout) bool
}

var layoutSlots = []layoutSlot{
	{0, UsagePosition, VertexTypeFloat3, func(Layout) bool { return true }},
	{0, UsageBlendWeights, VertexTypeNormalizedByte4, func(l Layout) bool { return l.Skinned }},
	{0, UsageBlendIndices, VertexTypeUInt4x8, func(l Layout) bool { return l.Skinned }},
	{1, UsageNormal, VertexTypeFloat3, func(l Layout) bool { return l.Geometry != GeometryPositionOnly }},
	{1, UsageTangent1, VertexTypeNormalizedByte4, func(l Layout) bool { return l.Geometry == GeometryPositionNormalTangent }},
	{1, UsageColor, VertexTypeNormalizedByte4, func(l Layout) bool {
		return l.Material == MaterialColor1 || l.Material == MaterialColor1Texture1
	}},
	{1, UsageUV, VertexTypeFloat4, func(l Layout) bool {
		return l.Material == MaterialTexture1 || l.Material == MaterialColor1Texture1
	}},
}

func buildLayoutTable() map[Layout]VertexDeclaration {
	table := make(map[Layout]VertexDeclaration)
	for g := GeometryPositionOnly; g <= GeometryPositionNormalTangent; g++ {
		for m := MaterialNone; m <= MaterialColor1Texture1; m++ {
			for _, skinned := range []bool{false, true} {
				l := Layout{Geometry: g, Material: m, Skinned: skinned}
				table[l] = declarationFor(l)
			}
		}
	}
	return table
}

func declarationFor(l Layout) VertexDeclaration {
	var offsets [MaxStreams]uint8
	var elements []VertexElement
	for _, slot := range layoutSlots {
		if !slot.want(l) {
			continue
		}
		elements = append(elements, VertexElement{
			Stream: slot.stream,
			Offset: offsets[slot.stream],
			Type:   slot.typ,
			Usage:  slot.usage,
		})
		offsets[slot.stream] += uint8(slot.typ.Size())
	}
	return VertexDeclaration{Elements: elements}
}
