package convert

import (
	"fmt"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// Extract rebuilds a scene from the first LOD of m. Blend indices are
// mapped through the bone tables to names and then to indices of skel.
// With a nil skel, a flat skeleton of the model bone names is used.
func Extract(m *mdl.Model, skel *scene.Skeleton) (*scene.Scene, error) {
	names := m.BoneNames()
	if skel == nil {
		skel = &scene.Skeleton{}
		for _, n := range names {
			skel.Bones = append(skel.Bones, scene.Bone{
				Name:     n,
				Parent:   -1,
				Rotation: [4]float32{0, 0, 0, 1},
				Scale:    [3]float32{1, 1, 1},
			})
		}
	}
	boneIndex := make([]uint16, len(names))
	for i, n := range names {
		j := skel.Index(n)
		if j < 0 {
			return nil, fmt.Errorf("%w: model bone %q not in skeleton", ErrUnresolvableSkeleton, n)
		}
		boneIndex[i] = uint16(j)
	}

	sc := &scene.Scene{Skeleton: skel}
	if len(skel.Bones) == 0 {
		sc.Skeleton = nil
	}

	lod := m.Lods[0]
	for mi := int(lod.MeshIndex); mi < int(lod.MeshIndex)+int(lod.MeshCount); mi++ {
		if mi >= len(m.Meshes) || mi >= len(m.VertexDeclarations) {
			return nil, fmt.Errorf("%w: mesh %d", mdl.ErrInvalidCount, mi)
		}
		mesh, err := extractMesh(m, mi, boneIndex)
		if err != nil {
			return nil, fmt.Errorf("mesh %d: %w", mi, err)
		}
		sc.Meshes = append(sc.Meshes, *mesh)
	}
	return sc, nil
}

func extractMesh(m *mdl.Model, mi int, boneIndex []uint16) (*scene.Mesh, error) {
	mesh := m.Meshes[mi]
	decl := m.VertexDeclarations[mi]

	var table mdl.BoneTable
	if int(mesh.BoneTableIndex) < len(m.BoneTables) {
		table = m.BoneTables[mesh.BoneTableIndex]
	}

	vertices, err := decodeVertices(m.VertexBuffers[0], mesh, decl, table, boneIndex)
	if err != nil {
		return nil, err
	}

	start := int(mesh.StartIndex) * 2
	end := start + int(mesh.IndexCount)*2
	ib := m.IndexBuffers[0]
	if end > len(ib) {
		return nil, fmt.Errorf("%w: index range %d..%d of %d", mdl.ErrTruncatedData, start, end, len(ib))
	}
	indices := make([]uint16, mesh.IndexCount)
	for i := range indices {
		indices[i] = byteOrder.Uint16(ib[start+i*2:])
	}

	out := &scene.Mesh{Name: fmt.Sprintf("mesh_%d", mi)}
	if mats := m.MaterialNames(); int(mesh.MaterialIndex) < len(mats) {
		out.Material = mats[mesh.MaterialIndex]
	}
	attrs := m.AttributeNames()

	// firsts[k] is the first mesh vertex of submesh k.
	var firsts []int
	first := int(mesh.SubmeshIndex)
	for si := first; si < first+int(mesh.SubmeshCount) && si < len(m.Submeshes); si++ {
		sub := m.Submeshes[si]
		lo := int(sub.IndexOffset) - int(mesh.StartIndex)
		hi := lo + int(sub.IndexCount)
		if lo < 0 || hi > len(indices) {
			return nil, fmt.Errorf("%w: submesh %d index range", mdl.ErrInvalidCount, si)
		}
		slots := indices[lo:hi]

		minV, maxV := 0, -1
		for i, idx := range slots {
			if i == 0 || int(idx) < minV {
				minV = int(idx)
			}
			if int(idx) > maxV {
				maxV = int(idx)
			}
		}
		if maxV >= len(vertices) {
			return nil, fmt.Errorf("%w: submesh %d references vertex %d of %d", ErrIndexOutOfRange, si, maxV, len(vertices))
		}

		s := scene.Submesh{Indices: make([]uint32, len(slots))}
		if maxV >= minV {
			s.Vertices = append([]scene.Vertex(nil), vertices[minV:maxV+1]...)
		}
		for i, idx := range slots {
			s.Indices[i] = uint32(int(idx) - minV)
		}
		for bit := 0; bit < 32 && bit < len(attrs); bit++ {
			if sub.AttributeIndexMask&(1<<uint(bit)) != 0 {
				s.Attributes = append(s.Attributes, attrs[bit])
			}
		}
		out.Submeshes = append(out.Submeshes, s)
		firsts = append(firsts, minV)
	}

	extractShapes(m, mesh, out, indices, vertices, firsts)
	return out, nil
}

// decodeVertices reads every vertex of mesh, including shape replacement
// vertices, from the LOD vertex buffer.
func decodeVertices(vb []byte, mesh mdl.Mesh, decl mdl.VertexDeclaration, table mdl.BoneTable, boneIndex []uint16) ([]scene.Vertex, error) {
	vertices := make([]scene.Vertex, mesh.VertexCount)
	var has scene.Attribute
	for _, e := range decl.Elements {
		switch e.Usage {
		case mdl.UsageNormal:
			has |= scene.AttrNormal
		case mdl.UsageTangent1:
			has |= scene.AttrTangent
		case mdl.UsageColor:
			has |= scene.AttrColor
		case mdl.UsageUV:
			has |= scene.AttrUV
		case mdl.UsageBlendIndices:
			has |= scene.AttrSkin
		}
	}
	bones := table.Bones()

	for vi := range vertices {
		v := &vertices[vi]
		v.Has = has
		for _, e := range decl.Elements {
			if int(e.Stream) >= mdl.MaxStreams {
				continue
			}
			off := int(mesh.VertexBufferOffset[e.Stream]) + vi*int(mesh.VertexBufferStride[e.Stream]) + int(e.Offset)
			if off > len(vb) {
				return nil, fmt.Errorf("%w: vertex %d %s", mdl.ErrTruncatedData, vi, e.Usage)
			}
			val, err := mdl.DecodeVertexValue(vb[off:], e.Type)
			if err != nil {
				return nil, fmt.Errorf("vertex %d %s: %w", vi, e.Usage, err)
			}
			switch e.Usage {
			case mdl.UsagePosition:
				v.Position = [3]float32{val[0], val[1], val[2]}
			case mdl.UsageNormal:
				v.Normal = [3]float32{val[0], val[1], val[2]}
			case mdl.UsageTangent1:
				v.Tangent = mdl.UnpackTangent(val)
			case mdl.UsageColor:
				v.Color = val
			case mdl.UsageUV:
				v.UV = val
			case mdl.UsageBlendWeights:
				v.BlendWeights = val
			case mdl.UsageBlendIndices:
				for k := 0; k < 4; k++ {
					slot := int(val[k])
					if slot < len(bones) && int(bones[slot]) < len(boneIndex) {
						v.BlendIndices[k] = boneIndex[bones[slot]]
					}
				}
			}
		}
	}
	return vertices, nil
}

// extractShapes turns the shape values of one mesh back into per-submesh
// morph targets.
func extractShapes(m *mdl.Model, mesh mdl.Mesh, out *scene.Mesh, indices []uint16, vertices []scene.Vertex, firsts []int) {
	type key struct {
		shape   string
		submesh int
	}
	targets := make(map[key]int)

	for _, shape := range m.Shapes {
		name := m.String(shape.StringOffset)
		start := int(shape.ShapeMeshStartIndex[0])
		for smi := start; smi < start+int(shape.ShapeMeshCount[0]) && smi < len(m.ShapeMeshes); smi++ {
			sm := m.ShapeMeshes[smi]
			if sm.MeshIndexOffset != mesh.StartIndex {
				continue
			}
			for vi := int(sm.ShapeValueOffset); vi < int(sm.ShapeValueOffset+sm.ShapeValueCount) && vi < len(m.ShapeValues); vi++ {
				sv := m.ShapeValues[vi]
				slot := int(sv.BaseIndicesIndex)
				repl := int(sv.ReplacingVertexIndex)
				if slot >= len(indices) || repl >= len(vertices) {
					continue
				}
				si := submeshOfSlot(m, mesh, slot)
				if si < 0 || si >= len(out.Submeshes) {
					continue
				}
				sub := &out.Submeshes[si]
				base := int(indices[slot])
				local := base - firsts[si]
				if local < 0 || local >= len(sub.Vertices) {
					continue
				}

				k := key{name, si}
				ti, ok := targets[k]
				if !ok {
					ti = len(sub.Targets)
					targets[k] = ti
					sub.Targets = append(sub.Targets, scene.MorphTarget{
						Name:           name,
						PositionDeltas: make([][3]float32, len(sub.Vertices)),
						NormalDeltas:   make([][3]float32, len(sub.Vertices)),
					})
				}
				t := &sub.Targets[ti]
				b, r := vertices[base], vertices[repl]
				t.PositionDeltas[local] = sub3(r.Position, b.Position)
				t.NormalDeltas[local] = sub3(r.Normal, b.Normal)
			}
		}
	}
}

// submeshOfSlot returns the mesh-relative submesh holding index slot.
func submeshOfSlot(m *mdl.Model, mesh mdl.Mesh, slot int) int {
	for k := 0; k < int(mesh.SubmeshCount); k++ {
		si := int(mesh.SubmeshIndex) + k
		if si >= len(m.Submeshes) {
			break
		}
		sub := m.Submeshes[si]
		lo := int(sub.IndexOffset) - int(mesh.StartIndex)
		if slot >= lo && slot < lo+int(sub.IndexCount) {
			return k
		}
	}
	return -1
}

func sub3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}
