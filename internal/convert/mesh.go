package convert

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// builtMesh is a fully assembled mesh waiting for layout planning.
type builtMesh struct {
	name      string
	material  string
	layout    mdl.Layout
	decl      mdl.VertexDeclaration
	bones     *BoneResolver
	submeshes []*builtSubmesh

	baseVertexCount int
	vertexCount     int // base plus shape replacement vertices
	indices         []uint16
	streams         [mdl.MaxStreams][]byte
	shapes          []meshShape
	bounds          box
}

// meshShape is the run of shape values one shape applies to one mesh.
type meshShape struct {
	name   string
	values []mdl.ShapeValue
}

// builder carries the state shared by every mesh of one conversion.
type builder struct {
	opts     Options
	report   *Report
	skeleton *scene.Skeleton
	attrs    map[string]int
}

func (b *builder) assembleMesh(mi int, m *scene.Mesh) (*builtMesh, error) {
	out := &builtMesh{name: m.Name, material: m.Material, bounds: newBox()}
	if out.material == "" {
		b.report.addf(MissingMaterial, mi, -1, "using %q", b.opts.DefaultMaterial)
		out.material = b.opts.DefaultMaterial
	}

	has := m.Attributes()
	subs := make([]scene.Submesh, len(m.Submeshes))
	copy(subs, m.Submeshes)
	if b.opts.GenerateTangents && has.Has(scene.AttrNormal|scene.AttrUV) && !has.Has(scene.AttrTangent) {
		for si := range subs {
			subs[si].Vertices = generateTangents(subs[si].Vertices, subs[si].Indices)
		}
		has |= scene.AttrTangent
	}
	out.layout = mdl.LayoutOf(
		has.Has(scene.AttrNormal),
		has.Has(scene.AttrTangent),
		has.Has(scene.AttrColor),
		has.Has(scene.AttrUV),
		has.Has(scene.AttrSkin),
	)
	out.decl = out.layout.Declaration()

	refs := referencedJoints(m)
	bones, dropped, err := resolveBones(b.skeleton, refs, b.opts.RootBone, b.opts.AuxiliaryRootBone)
	if err != nil {
		return nil, fmt.Errorf("mesh %d (%s): %w", mi, m.Name, err)
	}
	if dropped > 0 {
		b.report.addf(TooManyBones, mi, -1, "%d bones referenced, %d dropped", bones.Len()+dropped, dropped)
	}
	out.bones = bones

	vertexBase, indexOffset := 0, 0
	for si := range subs {
		sb, err := assembleSubmesh(mi, si, &subs[si], vertexBase, indexOffset, b.attrs, bones, b.report)
		if err != nil {
			return nil, err
		}
		out.submeshes = append(out.submeshes, sb)
		out.indices = append(out.indices, sb.indices...)
		out.bounds.merge(sb.bounds)
		vertexBase += len(sb.vertices)
		indexOffset += len(sb.indices)
	}
	out.baseVertexCount = vertexBase

	replacements := b.collectShapes(mi, out)
	out.vertexCount = out.baseVertexCount + len(replacements)
	if out.vertexCount > b.opts.MaxVertices {
		b.report.addf(TooManyVertices, mi, -1, "%d vertices, limit %d", out.vertexCount, b.opts.MaxVertices)
	}

	if err := b.encodeMesh(out, replacements); err != nil {
		return nil, fmt.Errorf("mesh %d (%s): %w", mi, m.Name, err)
	}
	return out, nil
}

// collectShapes allocates replacement vertices after the base vertices of
// the mesh, in submesh order, and groups the shape values by name in
// first-seen order. It returns the replacement vertices.
func (b *builder) collectShapes(mi int, out *builtMesh) []scene.Vertex {
	var replacements []scene.Vertex
	byName := make(map[string]int)

	for si, sb := range out.submeshes {
		for _, delta := range sb.shapes {
			base := out.baseVertexCount + len(replacements)
			overflow := false

			values := make([]mdl.ShapeValue, len(delta.Pairs))
			for i, p := range delta.Pairs {
				slot := sb.indexOffset + p.Slot
				repl := base + p.Replacement
				if slot > 0xFFFF || repl > 0xFFFF {
					overflow = true
				}
				values[i] = mdl.ShapeValue{
					BaseIndicesIndex:     uint16(slot),
					ReplacingVertexIndex: uint16(repl),
				}
			}
			if overflow {
				b.report.addf(ShapeIndexOverflow, mi, si, "shape %q exceeds 16-bit index range", delta.Name)
			}
			replacements = append(replacements, delta.Vertices...)

			idx, ok := byName[delta.Name]
			if !ok {
				idx = len(out.shapes)
				byName[delta.Name] = idx
				out.shapes = append(out.shapes, meshShape{name: delta.Name})
			}
			out.shapes[idx].values = append(out.shapes[idx].values, values...)
		}
	}
	return replacements
}

// encodeMesh encodes the vertex streams. Submeshes are encoded
// concurrently against the frozen bone resolver and rejoined in order.
func (b *builder) encodeMesh(out *builtMesh, replacements []scene.Vertex) error {
	jobs := make([][]scene.Vertex, 0, len(out.submeshes)+1)
	for _, sb := range out.submeshes {
		jobs = append(jobs, sb.vertices)
	}
	jobs = append(jobs, replacements)

	results := make([][mdl.MaxStreams][]byte, len(jobs))
	var g errgroup.Group
	g.SetLimit(b.opts.Workers)
	for i, vs := range jobs {
		g.Go(func() error {
			streams, err := encodeVertices(vs, out.decl, out.bones)
			if err != nil {
				return err
			}
			results[i] = streams
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for s := 0; s < mdl.MaxStreams; s++ {
		for _, r := range results {
			out.streams[s] = append(out.streams[s], r[s]...)
		}
	}
	return nil
}

// encodeVertices writes vs into one byte slice per stream.
func encodeVertices(vs []scene.Vertex, decl mdl.VertexDeclaration, bones *BoneResolver) ([mdl.MaxStreams][]byte, error) {
	var streams [mdl.MaxStreams][]byte
	strides := decl.Strides()
	for s := range streams {
		streams[s] = make([]byte, len(vs)*int(strides[s]))
	}

	scratch := make([]byte, 0, 16)
	for vi := range vs {
		for _, e := range decl.Elements {
			var err error
			scratch, err = mdl.AppendVertexValue(scratch[:0], e.Type, elementValue(&vs[vi], e.Usage, bones))
			if err != nil {
				return streams, fmt.Errorf("vertex %d %s: %w", vi, e.Usage, err)
			}
			stride := int(strides[e.Stream])
			copy(streams[e.Stream][vi*stride+int(e.Offset):], scratch)
		}
	}
	return streams, nil
}

func elementValue(v *scene.Vertex, usage mdl.VertexUsage, bones *BoneResolver) [4]float32 {
	switch usage {
	case mdl.UsagePosition:
		return [4]float32{v.Position[0], v.Position[1], v.Position[2], 0}
	case mdl.UsageBlendWeights:
		return v.BlendWeights
	case mdl.UsageBlendIndices:
		slots := bones.Remap(v.BlendIndices)
		return [4]float32{float32(slots[0]), float32(slots[1]), float32(slots[2]), float32(slots[3])}
	case mdl.UsageNormal:
		return [4]float32{v.Normal[0], v.Normal[1], v.Normal[2], 0}
	case mdl.UsageTangent1:
		return mdl.PackTangent(v.Tangent)
	case mdl.UsageColor:
		return v.Color
	case mdl.UsageUV:
		return v.UV
	default:
		return [4]float32{}
	}
}
