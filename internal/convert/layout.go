package convert

import (
	"github.com/xivdev/Xande-sub000/pkg/mdl"
)

// planner computes every table, count, offset and size of the output
// model in one sequential pass over the finished meshes.
type planner struct {
	opts   Options
	report *Report
	meshes []*builtMesh
	attrs  []string

	materials []string
	bones     []string
	shapes    []string
}

func newPlanner(opts Options, report *Report, meshes []*builtMesh, attrs []string) *planner {
	p := &planner{opts: opts, report: report, meshes: meshes, attrs: attrs}

	seenMat := make(map[string]int)
	seenBone := make(map[string]int)
	seenShape := make(map[string]int)
	for _, m := range meshes {
		if _, ok := seenMat[m.material]; !ok {
			seenMat[m.material] = len(p.materials)
			p.materials = append(p.materials, m.material)
		}
		for _, name := range m.bones.Names() {
			if _, ok := seenBone[name]; !ok {
				seenBone[name] = len(p.bones)
				p.bones = append(p.bones, name)
			}
		}
		for _, s := range m.shapes {
			if _, ok := seenShape[s.name]; !ok {
				seenShape[s.name] = len(p.shapes)
				p.shapes = append(p.shapes, s.name)
			}
		}
	}
	return p
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func (p *planner) plan() *mdl.Model {
	tmpl := p.opts.Template
	policy := p.opts.Merge
	m := &mdl.Model{}

	// Strings.
	st := mdl.NewStringTable()
	for _, a := range p.attrs {
		st.Add(mdl.CategoryAttribute, a)
	}
	for _, b := range p.bones {
		st.Add(mdl.CategoryBone, b)
	}
	for _, mat := range p.materials {
		st.Add(mdl.CategoryMaterial, mat)
	}
	for _, s := range p.shapes {
		st.Add(mdl.CategoryShape, s)
	}
	if tmpl != nil && policy.ElementIDs {
		for _, e := range tmpl.ElementIDs {
			st.Add(mdl.CategoryExtra, tmpl.String(e.ParentBoneName))
		}
	}
	blob := st.Freeze()
	m.Strings = blob.Bytes()
	m.StringCount = uint16(blob.Count())

	for _, a := range p.attrs {
		m.AttributeNameOffsets = append(m.AttributeNameOffsets, blob.MustOffset(a))
	}
	for _, b := range p.bones {
		m.BoneNameOffsets = append(m.BoneNameOffsets, blob.MustOffset(b))
	}
	for _, mat := range p.materials {
		m.MaterialNameOffsets = append(m.MaterialNameOffsets, blob.MustOffset(mat))
	}

	// Meshes, submeshes, bone tables, vertex and index buffers.
	var vertexData, indexData []byte
	bounds := newBox()
	startIndex := 0
	for mi, bm := range p.meshes {
		m.VertexDeclarations = append(m.VertexDeclarations, bm.decl)

		mesh := mdl.Mesh{
			VertexCount:        uint16(bm.vertexCount),
			IndexCount:         uint32(len(bm.indices)),
			MaterialIndex:      uint16(indexOf(p.materials, bm.material)),
			SubmeshIndex:       uint16(len(m.Submeshes)),
			SubmeshCount:       uint16(len(bm.submeshes)),
			BoneTableIndex:     uint16(mi),
			StartIndex:         uint32(startIndex),
			VertexBufferStride: bm.decl.Strides(),
			VertexStreamCount:  uint8(bm.decl.StreamCount()),
		}
		for s := 0; s < int(mesh.VertexStreamCount); s++ {
			mesh.VertexBufferOffset[s] = uint32(len(vertexData))
			vertexData = append(vertexData, bm.streams[s]...)
		}
		m.Meshes = append(m.Meshes, mesh)

		for _, sb := range bm.submeshes {
			sub := mdl.Submesh{
				IndexOffset:        uint32(startIndex + sb.indexOffset),
				IndexCount:         uint32(len(sb.indices)),
				AttributeIndexMask: sb.mask,
				BoneStartIndex:     uint16(len(m.SubmeshBoneMap)),
				BoneCount:          uint16(len(sb.boneSlots)),
			}
			m.SubmeshBoneMap = append(m.SubmeshBoneMap, sb.boneSlots...)
			m.Submeshes = append(m.Submeshes, sub)
		}

		var table mdl.BoneTable
		for slot, name := range bm.bones.Names() {
			table.BoneIndex[slot] = uint16(indexOf(p.bones, name))
		}
		table.BoneCount = uint8(bm.bones.Len())
		m.BoneTables = append(m.BoneTables, table)

		for _, idx := range bm.indices {
			indexData = byteOrder.AppendUint16(indexData, idx)
		}
		startIndex += len(bm.indices)
		bounds.merge(bm.bounds)
	}

	// Shapes: one entry per name, each a contiguous run of shape meshes in
	// mesh order.
	for _, name := range p.shapes {
		shape := mdl.Shape{
			StringOffset:        blob.MustOffset(name),
			ShapeMeshStartIndex: [mdl.LodCount]uint16{uint16(len(m.ShapeMeshes))},
		}
		for mi, bm := range p.meshes {
			for _, s := range bm.shapes {
				if s.name != name {
					continue
				}
				m.ShapeMeshes = append(m.ShapeMeshes, mdl.ShapeMesh{
					MeshIndexOffset:  m.Meshes[mi].StartIndex,
					ShapeValueCount:  uint32(len(s.values)),
					ShapeValueOffset: uint32(len(m.ShapeValues)),
				})
				m.ShapeValues = append(m.ShapeValues, s.values...)
				shape.ShapeMeshCount[0]++
			}
		}
		m.Shapes = append(m.Shapes, shape)
	}
	if n := len(m.ShapeValues); n > 0xFFFF || len(m.ShapeMeshes) > 0xFFFF || len(m.Shapes) > 0xFFFF {
		p.report.addf(ShapeIndexOverflow, -1, -1, "%d shapes, %d shape meshes, %d shape values exceed the 16-bit header counts",
			len(m.Shapes), len(m.ShapeMeshes), n)
	}

	// Bounding boxes.
	m.BoundingBoxes = bounds.record()
	m.ModelBoundingBoxes = bounds.record()
	m.BoneBoundingBoxes = make([]mdl.BoundingBox, len(p.bones))
	if tmpl != nil && policy.BoundingBoxes {
		m.BoundingBoxes = tmpl.BoundingBoxes
		m.ModelBoundingBoxes = tmpl.ModelBoundingBoxes
		m.WaterBoundingBoxes = tmpl.WaterBoundingBoxes
		m.VerticalFogBoundingBoxes = tmpl.VerticalFogBoundingBoxes
		tmplBones := tmpl.BoneNames()
		for i, name := range p.bones {
			if j := indexOf(tmplBones, name); j >= 0 && j < len(tmpl.BoneBoundingBoxes) {
				m.BoneBoundingBoxes[i] = tmpl.BoneBoundingBoxes[j]
			}
		}
	}

	if tmpl != nil && policy.ElementIDs {
		for _, e := range tmpl.ElementIDs {
			e.ParentBoneName = blob.MustOffset(tmpl.String(e.ParentBoneName))
			m.ElementIDs = append(m.ElementIDs, e)
		}
	}

	m.VertexBuffers[0] = vertexData
	m.IndexBuffers[0] = indexData

	p.planHeaders(m, bounds, startIndex)
	return m
}

// planHeaders fills the model header, LOD records and file header once
// every table has its final length.
func (p *planner) planHeaders(m *mdl.Model, bounds box, indexCount int) {
	tmpl := p.opts.Template
	policy := p.opts.Merge
	meshCount := uint16(len(m.Meshes))

	m.ModelHeader = mdl.ModelHeader{
		Radius:          bounds.radius(),
		MeshCount:       meshCount,
		AttributeCount:  uint16(len(m.AttributeNameOffsets)),
		SubmeshCount:    uint16(len(m.Submeshes)),
		MaterialCount:   uint16(len(m.MaterialNameOffsets)),
		BoneCount:       uint16(len(m.BoneNameOffsets)),
		BoneTableCount:  uint16(len(m.BoneTables)),
		ShapeCount:      uint16(len(m.Shapes)),
		ShapeMeshCount:  uint16(len(m.ShapeMeshes)),
		ShapeValueCount: uint16(len(m.ShapeValues)),
		LodCount:        1,
		ElementIDCount:  uint16(len(m.ElementIDs)),
	}
	if tmpl != nil && policy.ClipDistances {
		m.ModelHeader.ModelClipOutDistance = tmpl.ModelHeader.ModelClipOutDistance
		m.ModelHeader.ShadowClipOutDistance = tmpl.ModelHeader.ShadowClipOutDistance
	}
	if tmpl != nil && policy.Flags {
		m.ModelHeader.Flags1 = tmpl.ModelHeader.Flags1
		// Extra LOD records are never written.
		m.ModelHeader.Flags2 = tmpl.ModelHeader.Flags2 &^ mdl.Flags2ExtraLodEnabled
		m.ModelHeader.Flags3 = tmpl.ModelHeader.Flags3
	}

	m.FileHeader = mdl.FileHeader{
		Version:                p.opts.Version,
		VertexDeclarationCount: meshCount,
		MaterialCount:          uint16(len(m.MaterialNameOffsets)),
		LodCount:               1,
	}
	if tmpl != nil && policy.Version {
		m.FileHeader.Version = tmpl.FileHeader.Version
	}
	m.FileHeader.StackSize = m.StackSize()
	m.FileHeader.RuntimeSize = m.RuntimeSize()

	dataOffset := m.DataOffset()
	vertexSize := uint32(len(m.VertexBuffers[0]))
	indexSize := uint32(len(m.IndexBuffers[0]))
	fileSize := dataOffset + vertexSize + indexSize

	for lod := range m.Lods {
		l := &m.Lods[lod]
		*l = mdl.Lod{
			MeshIndex:              meshCount,
			WaterMeshIndex:         meshCount,
			ShadowMeshIndex:        meshCount,
			TerrainShadowMeshIndex: meshCount,
			VerticalFogMeshIndex:   meshCount,
			VertexDataOffset:       fileSize,
			IndexDataOffset:        fileSize,
		}
		if tmpl != nil && policy.LodRanges {
			l.ModelLodRange = tmpl.Lods[lod].ModelLodRange
			l.TextureLodRange = tmpl.Lods[lod].TextureLodRange
		}
		m.FileHeader.VertexOffset[lod] = fileSize
		m.FileHeader.IndexOffset[lod] = fileSize
	}

	lod0 := &m.Lods[0]
	lod0.MeshIndex = 0
	lod0.MeshCount = meshCount
	lod0.PolygonCount = uint32(indexCount / 3)
	lod0.VertexBufferSize = vertexSize
	lod0.IndexBufferSize = indexSize
	lod0.VertexDataOffset = dataOffset
	lod0.IndexDataOffset = dataOffset + vertexSize

	m.FileHeader.VertexOffset[0] = dataOffset
	m.FileHeader.IndexOffset[0] = dataOffset + vertexSize
	m.FileHeader.VertexBufferSize[0] = vertexSize
	m.FileHeader.IndexBufferSize[0] = indexSize
}
