package mdl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Writer errors.
var (
	ErrLayoutMismatch        = errors.New("model layout does not match its contents")
	ErrTooManyVertexElements = errors.New("vertex declaration has too many elements")
)

// byteOrder is the byte order of every field in the file.
var byteOrder = binary.LittleEndian

// sectionWriter writes fixed-size records and counts bytes.
// The first error sticks; later writes are no-ops.
type sectionWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (sw *sectionWriter) record(v any) {
	if sw.err != nil {
		return
	}
	if sw.err = binary.Write(sw.w, byteOrder, v); sw.err == nil {
		sw.n += int64(binary.Size(v))
	}
}

func (sw *sectionWriter) raw(b []byte) {
	if sw.err != nil {
		return
	}
	var n int
	n, sw.err = sw.w.Write(b)
	sw.n += int64(n)
}

// WriteTo serializes the model. The file header's size fields must already
// agree with the model's tables; WriteTo never seeks back to patch them.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	if err := m.checkLayout(); err != nil {
		return 0, err
	}

	sw := &sectionWriter{w: w}
	sw.record(&m.FileHeader)

	for i, decl := range m.VertexDeclarations {
		if len(decl.Elements) >= MaxVertexElements {
			return sw.n, fmt.Errorf("%w: declaration %d has %d", ErrTooManyVertexElements, i, len(decl.Elements))
		}
		var slots [MaxVertexElements]VertexElement
		copy(slots[:], decl.Elements)
		slots[len(decl.Elements)].Stream = streamTerminator
		sw.record(&slots)
	}

	runtimeStart := sw.n
	sw.record(m.StringCount)
	sw.record(uint16(0))
	sw.record(uint32(len(m.Strings)))
	sw.raw(m.Strings)

	sw.record(&m.ModelHeader)
	sw.record(m.ElementIDs)
	sw.record(&m.Lods)
	sw.record(m.ExtraLods)
	sw.record(m.Meshes)
	sw.record(m.AttributeNameOffsets)
	sw.record(m.TerrainShadowMeshes)
	sw.record(m.Submeshes)
	sw.record(m.TerrainShadowSubmeshes)
	sw.record(m.MaterialNameOffsets)
	sw.record(m.BoneNameOffsets)
	sw.record(m.BoneTables)
	sw.record(m.Shapes)
	sw.record(m.ShapeMeshes)
	sw.record(m.ShapeValues)
	sw.record(uint32(len(m.SubmeshBoneMap) * 2))
	sw.record(m.SubmeshBoneMap)

	var padding [1 + BoundingBoxPadding]byte
	padding[0] = BoundingBoxPadding
	sw.raw(padding[:])

	sw.record(&m.BoundingBoxes)
	sw.record(&m.ModelBoundingBoxes)
	sw.record(&m.WaterBoundingBoxes)
	sw.record(&m.VerticalFogBoundingBoxes)
	sw.record(m.BoneBoundingBoxes)

	if sw.err == nil && uint32(sw.n-runtimeStart) != m.FileHeader.RuntimeSize {
		return sw.n, fmt.Errorf("%w: wrote %d runtime bytes, header says %d",
			ErrLayoutMismatch, sw.n-runtimeStart, m.FileHeader.RuntimeSize)
	}

	for lod := 0; lod < LodCount; lod++ {
		sw.raw(m.VertexBuffers[lod])
		sw.raw(m.IndexBuffers[lod])
	}
	return sw.n, sw.err
}

// Bytes returns the serialized model.
func (m *Model) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(m.FileSize()))
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile serializes the model to path.
func (m *Model) WriteFile(path string) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// checkLayout verifies the header fields a reader depends on.
func (m *Model) checkLayout() error {
	h := &m.FileHeader
	if int(h.VertexDeclarationCount) != len(m.VertexDeclarations) {
		return fmt.Errorf("%w: %d vertex declarations, header says %d",
			ErrLayoutMismatch, len(m.VertexDeclarations), h.VertexDeclarationCount)
	}
	if h.StackSize != m.StackSize() {
		return fmt.Errorf("%w: stack size %d, computed %d", ErrLayoutMismatch, h.StackSize, m.StackSize())
	}
	if h.RuntimeSize != m.RuntimeSize() {
		return fmt.Errorf("%w: runtime size %d, computed %d", ErrLayoutMismatch, h.RuntimeSize, m.RuntimeSize())
	}
	offset := m.DataOffset()
	for lod := 0; lod < LodCount; lod++ {
		if len(m.VertexBuffers[lod]) == 0 && len(m.IndexBuffers[lod]) == 0 {
			continue
		}
		if h.VertexOffset[lod] != offset {
			return fmt.Errorf("%w: lod %d vertex offset %d, expected %d", ErrLayoutMismatch, lod, h.VertexOffset[lod], offset)
		}
		offset += uint32(len(m.VertexBuffers[lod]))
		if h.IndexOffset[lod] != offset {
			return fmt.Errorf("%w: lod %d index offset %d, expected %d", ErrLayoutMismatch, lod, h.IndexOffset[lod], offset)
		}
		offset += uint32(len(m.IndexBuffers[lod]))
	}
	return nil
}
