package convert

import (
	"fmt"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// BoneResolver maps the raw skeleton joint indices of one mesh to the
// local slots of its bone table. It is immutable once built and safe for
// concurrent use.
type BoneResolver struct {
	names []string       // slot -> bone name
	slots map[uint16]int // raw joint -> slot
}

// resolveBones builds the resolver for one mesh. referenced holds every raw
// joint index used by the mesh. The second result is the number of
// distinct bones dropped by the 64-bone cap.
func resolveBones(skel *scene.Skeleton, referenced map[uint16]struct{}, root, aux string) (*BoneResolver, int, error) {
	r := &BoneResolver{slots: make(map[uint16]int)}
	if len(referenced) == 0 {
		return r, 0, nil
	}
	if skel == nil {
		return nil, 0, ErrSkeletonRequired
	}
	for j := range referenced {
		if int(j) >= len(skel.Bones) {
			return nil, 0, fmt.Errorf("%w: joint %d, skeleton has %d bones", ErrUnresolvableSkeleton, j, len(skel.Bones))
		}
	}

	keepAux := skel.Count(aux) > 1
	excluded := func(i int) bool {
		name := skel.Bones[i].Name
		return name == root || (name == aux && !keepAux)
	}

	children, roots := skel.Children()
	visited := make([]bool, len(skel.Bones))
	var order []int
	var walk func(i int)
	walk = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		if _, ok := referenced[uint16(i)]; ok && !excluded(i) {
			order = append(order, i)
		}
		for _, c := range children[i] {
			walk(c)
		}
	}
	for _, i := range roots {
		walk(i)
	}

	dropped := 0
	if len(order) > mdl.MaxBonesPerTable {
		dropped = len(order) - mdl.MaxBonesPerTable
		order = order[:mdl.MaxBonesPerTable]
	}
	for slot, i := range order {
		r.names = append(r.names, skel.Bones[i].Name)
		r.slots[uint16(i)] = slot
	}
	return r, dropped, nil
}

// Len returns the number of bones in the table.
func (r *BoneResolver) Len() int {
	return len(r.names)
}

// Names returns the bone names in slot order.
func (r *BoneResolver) Names() []string {
	return r.names
}

// Slot returns the table slot of a raw joint index. Unmapped joints map to 0.
func (r *BoneResolver) Slot(joint uint16) int {
	return r.slots[joint]
}

// Remap rewrites the four raw joint indices of a vertex.
func (r *BoneResolver) Remap(joints [4]uint16) [4]uint8 {
	var out [4]uint8
	for i, j := range joints {
		out[i] = uint8(r.Slot(j))
	}
	return out
}

// referencedJoints collects the distinct raw joints of a mesh. Joints are
// counted when their weight is non-zero, or for the first influence of a
// vertex whose weights are all zero.
func referencedJoints(m *scene.Mesh) map[uint16]struct{} {
	refs := make(map[uint16]struct{})
	if !m.Attributes().Has(scene.AttrSkin) {
		return refs
	}
	for si := range m.Submeshes {
		for _, v := range m.Submeshes[si].Vertices {
			for _, j := range influences(v) {
				refs[j] = struct{}{}
			}
		}
	}
	return refs
}

func influences(v scene.Vertex) []uint16 {
	var out []uint16
	for k := 0; k < 4; k++ {
		if v.BlendWeights[k] > 0 {
			out = append(out, v.BlendIndices[k])
		}
	}
	if len(out) == 0 {
		out = append(out, v.BlendIndices[0])
	}
	return out
}
