package mdl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader errors.
var (
	ErrTruncatedData      = errors.New("truncated model data")
	ErrUnsupportedVersion = errors.New("unsupported model version")
	ErrInvalidDeclaration = errors.New("invalid vertex declaration")
	ErrInvalidCount       = errors.New("invalid model table count")
)

// maxVersionMajor bounds the major version byte accepted by Parse.
const maxVersionMajor = 0x01

// Parse decodes a model from data.
func Parse(data []byte) (*Model, error) {
	if len(data) < FileHeaderSize {
		return nil, ErrTruncatedData
	}

	r := bytes.NewReader(data)
	m := &Model{}

	if err := binary.Read(r, byteOrder, &m.FileHeader); err != nil {
		return nil, ErrTruncatedData
	}
	if m.FileHeader.Version>>24 > maxVersionMajor {
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnsupportedVersion, m.FileHeader.Version)
	}

	declCount := int(m.FileHeader.VertexDeclarationCount)
	if declCount*VertexDeclarationSize > r.Len() {
		return nil, fmt.Errorf("%w: %d vertex declarations", ErrTruncatedData, declCount)
	}
	m.VertexDeclarations = make([]VertexDeclaration, declCount)
	for i := range m.VertexDeclarations {
		decl, err := readDeclaration(r)
		if err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}
		m.VertexDeclarations[i] = decl
	}

	if err := m.readRuntime(r); err != nil {
		return nil, err
	}

	for lod := 0; lod < int(m.FileHeader.LodCount) && lod < LodCount; lod++ {
		vb, err := slice(data, m.FileHeader.VertexOffset[lod], m.FileHeader.VertexBufferSize[lod])
		if err != nil {
			return nil, fmt.Errorf("lod %d vertex buffer: %w", lod, err)
		}
		ib, err := slice(data, m.FileHeader.IndexOffset[lod], m.FileHeader.IndexBufferSize[lod])
		if err != nil {
			return nil, fmt.Errorf("lod %d index buffer: %w", lod, err)
		}
		m.VertexBuffers[lod] = vb
		m.IndexBuffers[lod] = ib
	}

	return m, nil
}

// ParseFile decodes a model file from disk.
func ParseFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	return Parse(data)
}

func readDeclaration(r *bytes.Reader) (VertexDeclaration, error) {
	var slots [MaxVertexElements]VertexElement
	if err := binary.Read(r, byteOrder, &slots); err != nil {
		return VertexDeclaration{}, ErrTruncatedData
	}
	var decl VertexDeclaration
	for _, e := range slots {
		if e.Stream == streamTerminator {
			return decl, nil
		}
		if int(e.Stream) >= MaxStreams || e.Type.Size() == 0 {
			return decl, fmt.Errorf("%w: stream %d type %s", ErrInvalidDeclaration, e.Stream, e.Type)
		}
		decl.Elements = append(decl.Elements, e)
	}
	return decl, fmt.Errorf("%w: missing terminator", ErrInvalidDeclaration)
}

// readRuntime reads every section between the declarations and the buffers.
func (m *Model) readRuntime(r *bytes.Reader) error {
	var stringSize uint32
	var pad uint16
	if err := readAll(r, &m.StringCount, &pad, &stringSize); err != nil {
		return err
	}
	if int(stringSize) > r.Len() {
		return fmt.Errorf("%w: string blob of %d bytes", ErrTruncatedData, stringSize)
	}
	m.Strings = make([]byte, stringSize)
	if _, err := io.ReadFull(r, m.Strings); err != nil {
		return ErrTruncatedData
	}

	if err := readAll(r, &m.ModelHeader); err != nil {
		return err
	}
	h := &m.ModelHeader

	m.ElementIDs = make([]ElementID, h.ElementIDCount)
	if err := readAll(r, m.ElementIDs, &m.Lods); err != nil {
		return err
	}
	if h.ExtraLodEnabled() {
		m.ExtraLods = make([]ExtraLod, LodCount)
		if err := readAll(r, m.ExtraLods); err != nil {
			return err
		}
	}

	m.Meshes = make([]Mesh, h.MeshCount)
	m.AttributeNameOffsets = make([]uint32, h.AttributeCount)
	m.TerrainShadowMeshes = make([]TerrainShadowMesh, h.TerrainShadowMeshCount)
	m.Submeshes = make([]Submesh, h.SubmeshCount)
	m.TerrainShadowSubmeshes = make([]TerrainShadowSubmesh, h.TerrainShadowSubmeshCount)
	m.MaterialNameOffsets = make([]uint32, h.MaterialCount)
	m.BoneNameOffsets = make([]uint32, h.BoneCount)
	m.BoneTables = make([]BoneTable, h.BoneTableCount)
	m.Shapes = make([]Shape, h.ShapeCount)
	m.ShapeMeshes = make([]ShapeMesh, h.ShapeMeshCount)
	m.ShapeValues = make([]ShapeValue, h.ShapeValueCount)
	if err := readAll(r,
		m.Meshes,
		m.AttributeNameOffsets,
		m.TerrainShadowMeshes,
		m.Submeshes,
		m.TerrainShadowSubmeshes,
		m.MaterialNameOffsets,
		m.BoneNameOffsets,
		m.BoneTables,
		m.Shapes,
		m.ShapeMeshes,
		m.ShapeValues,
	); err != nil {
		return err
	}

	var boneMapSize uint32
	if err := readAll(r, &boneMapSize); err != nil {
		return err
	}
	if boneMapSize%2 != 0 || int(boneMapSize) > r.Len() {
		return fmt.Errorf("%w: submesh bone map of %d bytes", ErrInvalidCount, boneMapSize)
	}
	m.SubmeshBoneMap = make([]uint16, boneMapSize/2)
	if err := readAll(r, m.SubmeshBoneMap); err != nil {
		return err
	}

	padding, err := r.ReadByte()
	if err != nil {
		return ErrTruncatedData
	}
	if _, err := r.Seek(int64(padding), io.SeekCurrent); err != nil {
		return ErrTruncatedData
	}

	m.BoneBoundingBoxes = make([]BoundingBox, h.BoneCount)
	return readAll(r,
		&m.BoundingBoxes,
		&m.ModelBoundingBoxes,
		&m.WaterBoundingBoxes,
		&m.VerticalFogBoundingBoxes,
		m.BoneBoundingBoxes,
	)
}

func readAll(r *bytes.Reader, values ...any) error {
	for _, v := range values {
		if size := binary.Size(v); size > r.Len() {
			return fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedData, size, r.Len())
		}
		if err := binary.Read(r, byteOrder, v); err != nil {
			return ErrTruncatedData
		}
	}
	return nil
}

func slice(data []byte, offset, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: [%d, %d) beyond %d bytes", ErrTruncatedData, offset, end, len(data))
	}
	out := make([]byte, size)
	copy(out, data[offset:end])
	return out, nil
}
