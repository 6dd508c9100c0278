package convert

import (
	"fmt"
	"sort"

	"github.com/flywave/go3d/vec3"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// box is an axis-aligned bounding box that starts empty.
type box struct {
	min, max vec3.T
	empty    bool
}

func newBox() box {
	return box{empty: true}
}

func (b *box) add(p [3]float32) {
	v := vec3.T{p[0], p[1], p[2]}
	if b.empty {
		b.min, b.max, b.empty = v, v, false
		return
	}
	b.min = vec3.Min(&b.min, &v)
	b.max = vec3.Max(&b.max, &v)
}

func (b *box) merge(o box) {
	if o.empty {
		return
	}
	if b.empty {
		*b = o
		return
	}
	b.min = vec3.Min(&b.min, &o.min)
	b.max = vec3.Max(&b.max, &o.max)
}

// record converts the box to its file form with w = 1. An empty box is zero.
func (b box) record() mdl.BoundingBox {
	if b.empty {
		return mdl.BoundingBox{}
	}
	return mdl.BoundingBox{
		Min: [4]float32{b.min[0], b.min[1], b.min[2], 1},
		Max: [4]float32{b.max[0], b.max[1], b.max[2], 1},
	}
}

// radius is the distance from the origin to the farthest corner.
func (b box) radius() float32 {
	if b.empty {
		return 0
	}
	r := b.min.Length()
	if m := b.max.Length(); m > r {
		r = m
	}
	return r
}

// builtSubmesh is one submesh's contribution to its mesh.
type builtSubmesh struct {
	vertices    []scene.Vertex
	indices     []uint16 // renumbered into the mesh vertex buffer
	vertexBase  int
	indexOffset int // first index slot within the mesh
	bounds      box
	mask        uint32
	boneSlots   []uint16
	shapes      []ShapeDelta
}

// assembleSubmesh renumbers the submesh indices by vertexBase, computes its
// bounds, attribute mask and bone slots, and encodes its morph targets.
func assembleSubmesh(mi, si int, sub *scene.Submesh, vertexBase, indexOffset int,
	attrs map[string]int, bones *BoneResolver, report *Report) (*builtSubmesh, error) {
	b := &builtSubmesh{
		vertices:    sub.Vertices,
		indices:     make([]uint16, len(sub.Indices)),
		vertexBase:  vertexBase,
		indexOffset: indexOffset,
		bounds:      newBox(),
	}

	for slot, idx := range sub.Indices {
		if int(idx) >= len(sub.Vertices) {
			return nil, fmt.Errorf("%w: mesh %d submesh %d slot %d references vertex %d of %d",
				ErrIndexOutOfRange, mi, si, slot, idx, len(sub.Vertices))
		}
		b.indices[slot] = uint16(int(idx) + vertexBase)
	}

	for _, v := range sub.Vertices {
		b.bounds.add(v.Position)
	}

	for _, name := range sub.Attributes {
		if bit, ok := attrs[name]; ok && bit < 32 {
			b.mask |= 1 << uint(bit)
		}
	}

	if bones.Len() > 0 {
		used := make(map[uint16]struct{})
		for _, v := range sub.Vertices {
			for _, j := range influences(v) {
				used[uint16(bones.Slot(j))] = struct{}{}
			}
		}
		for s := range used {
			b.boneSlots = append(b.boneSlots, s)
		}
		sort.Slice(b.boneSlots, func(i, j int) bool { return b.boneSlots[i] < b.boneSlots[j] })
	}

	for ti := range sub.Targets {
		target := &sub.Targets[ti]
		if targetMismatch(sub, target) {
			report.addf(StreamKeyMismatch, mi, si, "shape %q has %d position deltas for %d vertices",
				target.Name, len(target.PositionDeltas), len(sub.Vertices))
			continue
		}
		delta := encodeShape(sub, target)
		if len(delta.Pairs) == 0 {
			continue
		}
		b.shapes = append(b.shapes, delta)
	}
	return b, nil
}
