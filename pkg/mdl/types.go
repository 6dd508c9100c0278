// Package mdl provides reading and writing of packed-binary model containers.
//
// A model file is one flat little-endian byte stream: a fixed file header,
// the per-mesh vertex declarations, a NUL-delimited string blob, the model
// header and its tables, bounding boxes, and finally the raw vertex and index
// buffers for each level of detail.
package mdl

// Fixed record sizes in bytes.
const (
	FileHeaderSize           = 68
	VertexElementSize        = 8
	VertexDeclarationSize    = MaxVertexElements * VertexElementSize
	ModelHeaderSize          = 56
	ElementIDSize            = 32
	LodSize                  = 60
	ExtraLodSize             = 40
	MeshSize                 = 36
	TerrainShadowMeshSize    = 20
	SubmeshSize              = 16
	TerrainShadowSubmeshSize = 12
	BoneTableSize            = 132
	ShapeSize                = 16
	ShapeMeshSize            = 12
	ShapeValueSize           = 4
	BoundingBoxSize          = 32
)

// Format limits.
const (
	LodCount          = 3
	MaxStreams        = 3
	MaxVertexElements = 17
	MaxBonesPerTable  = 64
	// BoundingBoxPadding is written as a length byte followed by that many zeros.
	BoundingBoxPadding = 7
)

// DefaultVersion is the file version written when no template overrides it.
const DefaultVersion uint32 = 0x01000005

// ModelHeader flag bits (Flags2).
const (
	Flags2ExtraLodEnabled uint8 = 0x10
)

// FileHeader is the 68-byte record at the start of every model file.
type FileHeader struct {
	Version                    uint32
	StackSize                  uint32
	RuntimeSize                uint32
	VertexDeclarationCount     uint16
	MaterialCount              uint16
	VertexOffset               [LodCount]uint32
	IndexOffset                [LodCount]uint32
	VertexBufferSize           [LodCount]uint32
	IndexBufferSize            [LodCount]uint32
	LodCount                   uint8
	EnableIndexBufferStreaming uint8
	EnableEdgeGeometry         uint8
	_                          uint8
}

// ModelHeader carries the model-wide table counts.
type ModelHeader struct {
	Radius                     float32
	MeshCount                  uint16
	AttributeCount             uint16
	SubmeshCount               uint16
	MaterialCount              uint16
	BoneCount                  uint16
	BoneTableCount             uint16
	ShapeCount                 uint16
	ShapeMeshCount             uint16
	ShapeValueCount            uint16
	LodCount                   uint8
	Flags1                     uint8
	ElementIDCount             uint16
	TerrainShadowMeshCount     uint8
	Flags2                     uint8
	ModelClipOutDistance       float32
	ShadowClipOutDistance      float32
	CullingGridCount           uint16
	TerrainShadowSubmeshCount  uint16
	Flags3                     uint8
	BGChangeMaterialIndex      uint8
	BGCrestChangeMaterialIndex uint8
	Unknown6                   uint8
	BoneTableArrayCountTotal   uint16
	Unknown8                   uint16
	Unknown9                   uint16
	_                          [6]byte
}

// ExtraLodEnabled reports whether ExtraLod records follow the Lod records.
func (h ModelHeader) ExtraLodEnabled() bool {
	return h.Flags2&Flags2ExtraLodEnabled != 0
}

// ElementID attaches an external element to a bone.
type ElementID struct {
	ElementID      uint32
	ParentBoneName uint32 // string offset
	Translate      [3]float32
	Rotate         [3]float32
}

// Lod describes the mesh ranges and buffer placement of one level of detail.
type Lod struct {
	MeshIndex              uint16
	MeshCount              uint16
	ModelLodRange          float32
	TextureLodRange        float32
	WaterMeshIndex         uint16
	WaterMeshCount         uint16
	ShadowMeshIndex        uint16
	ShadowMeshCount        uint16
	TerrainShadowMeshIndex uint16
	TerrainShadowMeshCount uint16
	VerticalFogMeshIndex   uint16
	VerticalFogMeshCount   uint16
	EdgeGeometrySize       uint32
	EdgeGeometryDataOffset uint32
	PolygonCount           uint32
	Unknown1               uint32
	VertexBufferSize       uint32
	IndexBufferSize        uint32
	VertexDataOffset       uint32
	IndexDataOffset        uint32
}

// ExtraLod holds the additional mesh ranges present when Flags2ExtraLodEnabled is set.
type ExtraLod struct {
	LightShaftMeshIndex     uint16
	LightShaftMeshCount     uint16
	GlassMeshIndex          uint16
	GlassMeshCount          uint16
	MaterialChangeMeshIndex uint16
	MaterialChangeMeshCount uint16
	CrestChangeMeshIndex    uint16
	CrestChangeMeshCount    uint16
	Unknown                 [12]uint16
}

// Mesh is one drawable unit with a single material and bone table.
type Mesh struct {
	VertexCount        uint16
	_                  uint16
	IndexCount         uint32
	MaterialIndex      uint16
	SubmeshIndex       uint16
	SubmeshCount       uint16
	BoneTableIndex     uint16
	StartIndex         uint32
	VertexBufferOffset [MaxStreams]uint32
	VertexBufferStride [MaxStreams]uint8
	VertexStreamCount  uint8
}

// TerrainShadowMesh is carried through unchanged; the converter never emits one.
type TerrainShadowMesh struct {
	IndexCount         uint32
	StartIndex         uint32
	VertexBufferOffset uint32
	VertexCount        uint16
	SubmeshIndex       uint16
	SubmeshCount       uint16
	VertexBufferStride uint8
	_                  uint8
}

// Submesh is a contiguous index range inside its mesh.
type Submesh struct {
	IndexOffset        uint32
	IndexCount         uint32
	AttributeIndexMask uint32
	BoneStartIndex     uint16
	BoneCount          uint16
}

// TerrainShadowSubmesh is carried through unchanged.
type TerrainShadowSubmesh struct {
	IndexOffset uint32
	IndexCount  uint32
	Unknown1    uint16
	Unknown2    uint16
}

// BoneTable maps a mesh's local blend indices to model bone indices.
type BoneTable struct {
	BoneIndex [MaxBonesPerTable]uint16
	BoneCount uint8
	_         [3]byte
}

// Bones returns the active part of the table.
func (t *BoneTable) Bones() []uint16 {
	n := int(t.BoneCount)
	if n > MaxBonesPerTable {
		n = MaxBonesPerTable
	}
	return t.BoneIndex[:n]
}

// Shape is a named morph target spanning one or more meshes.
type Shape struct {
	StringOffset        uint32
	ShapeMeshStartIndex [LodCount]uint16
	ShapeMeshCount      [LodCount]uint16
}

// ShapeMesh is the run of shape values a shape applies to one mesh.
type ShapeMesh struct {
	MeshIndexOffset  uint32
	ShapeValueCount  uint32
	ShapeValueOffset uint32
}

// ShapeValue replaces the vertex referenced by one index slot.
type ShapeValue struct {
	BaseIndicesIndex     uint16
	ReplacingVertexIndex uint16
}

// BoundingBox is an axis-aligned box with homogeneous corners.
type BoundingBox struct {
	Min [4]float32
	Max [4]float32
}

// Model is a fully decoded (or fully planned) model file.
type Model struct {
	FileHeader         FileHeader
	VertexDeclarations []VertexDeclaration

	StringCount uint16
	Strings     []byte

	ModelHeader ModelHeader
	ElementIDs  []ElementID
	Lods        [LodCount]Lod
	ExtraLods   []ExtraLod

	Meshes                 []Mesh
	AttributeNameOffsets   []uint32
	TerrainShadowMeshes    []TerrainShadowMesh
	Submeshes              []Submesh
	TerrainShadowSubmeshes []TerrainShadowSubmesh
	MaterialNameOffsets    []uint32
	BoneNameOffsets        []uint32
	BoneTables             []BoneTable
	Shapes                 []Shape
	ShapeMeshes            []ShapeMesh
	ShapeValues            []ShapeValue
	SubmeshBoneMap         []uint16

	BoundingBoxes            BoundingBox
	ModelBoundingBoxes       BoundingBox
	WaterBoundingBoxes       BoundingBox
	VerticalFogBoundingBoxes BoundingBox
	BoneBoundingBoxes        []BoundingBox

	VertexBuffers [LodCount][]byte
	IndexBuffers  [LodCount][]byte
}

// StackSize returns the byte size of the vertex declaration section.
func (m *Model) StackSize() uint32 {
	return uint32(len(m.VertexDeclarations) * VertexDeclarationSize)
}

// RuntimeSize returns the byte size of everything between the vertex
// declarations and the first vertex buffer.
func (m *Model) RuntimeSize() uint32 {
	size := 8 + len(m.Strings) // string count, pad, string size
	size += ModelHeaderSize
	size += len(m.ElementIDs) * ElementIDSize
	size += LodCount * LodSize
	size += len(m.ExtraLods) * ExtraLodSize
	size += len(m.Meshes) * MeshSize
	size += len(m.AttributeNameOffsets) * 4
	size += len(m.TerrainShadowMeshes) * TerrainShadowMeshSize
	size += len(m.Submeshes) * SubmeshSize
	size += len(m.TerrainShadowSubmeshes) * TerrainShadowSubmeshSize
	size += len(m.MaterialNameOffsets) * 4
	size += len(m.BoneNameOffsets) * 4
	size += len(m.BoneTables) * BoneTableSize
	size += len(m.Shapes) * ShapeSize
	size += len(m.ShapeMeshes) * ShapeMeshSize
	size += len(m.ShapeValues) * ShapeValueSize
	size += 4 + len(m.SubmeshBoneMap)*2
	size += 1 + BoundingBoxPadding
	size += 4 * BoundingBoxSize
	size += len(m.BoneBoundingBoxes) * BoundingBoxSize
	return uint32(size)
}

// DataOffset returns the file offset of the first vertex buffer.
func (m *Model) DataOffset() uint32 {
	return FileHeaderSize + m.StackSize() + m.RuntimeSize()
}

// String returns the NUL-terminated string at offset in the string blob.
func (m *Model) String(offset uint32) string {
	return stringAt(m.Strings, offset)
}

// AttributeNames returns the model attribute names in table order.
func (m *Model) AttributeNames() []string {
	return m.lookup(m.AttributeNameOffsets)
}

// MaterialNames returns the model material names in table order.
func (m *Model) MaterialNames() []string {
	return m.lookup(m.MaterialNameOffsets)
}

// BoneNames returns the model bone names in table order.
func (m *Model) BoneNames() []string {
	return m.lookup(m.BoneNameOffsets)
}

// ShapeNames returns the shape names in table order.
func (m *Model) ShapeNames() []string {
	names := make([]string, len(m.Shapes))
	for i, s := range m.Shapes {
		names[i] = m.String(s.StringOffset)
	}
	return names
}

func (m *Model) lookup(offsets []uint32) []string {
	names := make([]string, len(offsets))
	for i, off := range offsets {
		names[i] = m.String(off)
	}
	return names
}

// FileSize returns the total byte size of the serialized model.
func (m *Model) FileSize() uint32 {
	size := m.DataOffset()
	for lod := 0; lod < LodCount; lod++ {
		size += uint32(len(m.VertexBuffers[lod]) + len(m.IndexBuffers[lod]))
	}
	return size
}
