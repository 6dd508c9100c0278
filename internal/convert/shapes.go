package convert

import (
	"github.com/flywave/go3d/vec3"

	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// ShapePair is one encoded morph entry, local to its submesh: Slot is the
// position in the submesh index buffer, Replacement the compacted index of
// the active vertex.
type ShapePair struct {
	Slot        int
	Replacement int
}

// ShapeDelta is the encoding of one morph target on one submesh.
type ShapeDelta struct {
	Name  string
	Pairs []ShapePair
	// Vertices holds the replacement vertices in compacted order.
	Vertices []scene.Vertex
}

// encodeShape encodes target against the base vertices and index buffer of
// a submesh. Active vertices are compacted in order of their first
// reference in the index buffer, and every index slot referencing an
// active vertex yields one pair, so duplicated references stay duplicated.
func encodeShape(sub *scene.Submesh, target *scene.MorphTarget) ShapeDelta {
	delta := ShapeDelta{Name: target.Name}
	compact := make(map[uint32]int)

	for slot, idx := range sub.Indices {
		if int(idx) >= len(target.PositionDeltas) || isZero(target.PositionDeltas[idx]) {
			continue
		}
		c, ok := compact[idx]
		if !ok {
			c = len(delta.Vertices)
			compact[idx] = c
			delta.Vertices = append(delta.Vertices, morphVertex(sub.Vertices[idx], target, int(idx)))
		}
		delta.Pairs = append(delta.Pairs, ShapePair{Slot: slot, Replacement: c})
	}
	return delta
}

// morphVertex applies the target deltas of vertex i to a copy of base.
func morphVertex(base scene.Vertex, target *scene.MorphTarget, i int) scene.Vertex {
	v := base
	d := target.PositionDeltas[i]
	v.Position = [3]float32{base.Position[0] + d[0], base.Position[1] + d[1], base.Position[2] + d[2]}

	if v.Has.Has(scene.AttrNormal) && i < len(target.NormalDeltas) {
		nd := target.NormalDeltas[i]
		n := vec3.T{base.Normal[0] + nd[0], base.Normal[1] + nd[1], base.Normal[2] + nd[2]}
		if n.Length() > 0 {
			n = n.Normalized()
		}
		v.Normal = [3]float32{n[0], n[1], n[2]}
	}
	return v
}

// targetMismatch reports whether the delta arrays of target disagree with
// the vertex count of the submesh.
func targetMismatch(sub *scene.Submesh, target *scene.MorphTarget) bool {
	n := len(sub.Vertices)
	if len(target.PositionDeltas) != n {
		return true
	}
	return target.NormalDeltas != nil && len(target.NormalDeltas) != n
}

func isZero(v [3]float32) bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}
