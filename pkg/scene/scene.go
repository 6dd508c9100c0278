// Package scene is the generic triangle-mesh representation the model
// converter reads from and writes to.
package scene

import (
	"errors"
	"fmt"
)

// Attribute is a bitmask of optional per-vertex attributes.
// Position is always present.
type Attribute uint8

// Optional vertex attributes.
const (
	AttrNormal Attribute = 1 << iota
	AttrTangent
	AttrColor
	AttrUV
	AttrSkin // blend weights and blend indices
)

// Has reports whether every bit of other is set.
func (a Attribute) Has(other Attribute) bool {
	return a&other == other
}

// Vertex holds one vertex. Fields whose bit is not set in Has are ignored.
type Vertex struct {
	Has          Attribute
	Position     [3]float32
	Normal       [3]float32
	Tangent      [4]float32 // handedness in W
	Color        [4]float32
	UV           [4]float32 // two uv pairs
	BlendWeights [4]float32
	BlendIndices [4]uint16 // skeleton bone indices
}

// MorphTarget is a named set of per-vertex deltas, parallel to the
// submesh vertex array.
type MorphTarget struct {
	Name           string
	PositionDeltas [][3]float32
	NormalDeltas   [][3]float32 // optional
}

// Submesh is a triangle list over its own vertex array.
type Submesh struct {
	Vertices   []Vertex
	Indices    []uint32
	Targets    []MorphTarget
	Attributes []string
}

// Mesh is a set of submeshes sharing one material.
type Mesh struct {
	Name      string
	Material  string
	Submeshes []Submesh
}

// VertexCount returns the number of base vertices over all submeshes.
func (m *Mesh) VertexCount() int {
	n := 0
	for i := range m.Submeshes {
		n += len(m.Submeshes[i].Vertices)
	}
	return n
}

// Attributes returns the attribute presence of the mesh, taken from the
// first vertex of its first non-empty submesh.
func (m *Mesh) Attributes() Attribute {
	for i := range m.Submeshes {
		if len(m.Submeshes[i].Vertices) > 0 {
			return m.Submeshes[i].Vertices[0].Has
		}
	}
	return 0
}

// Scene is an ordered list of meshes with an optional skeleton.
type Scene struct {
	Meshes   []Mesh
	Skeleton *Skeleton
}

// Skinned reports whether any mesh carries blend data.
func (s *Scene) Skinned() bool {
	for i := range s.Meshes {
		if s.Meshes[i].Attributes().Has(AttrSkin) {
			return true
		}
	}
	return false
}

// Skeleton errors.
var (
	ErrInvalidParent = errors.New("invalid parent bone index")
	ErrBoneCycle     = errors.New("bone hierarchy contains a cycle")
)

// Bone is one skeleton joint with its local reference pose.
type Bone struct {
	Name        string     `yaml:"name"`
	Parent      int        `yaml:"parent"`
	Translation [3]float32 `yaml:"translation,flow"`
	Rotation    [4]float32 `yaml:"rotation,flow"` // quaternion XYZW
	Scale       [3]float32 `yaml:"scale,flow"`
}

// Skeleton is an ordered bone list; Parent is -1 for roots.
type Skeleton struct {
	Bones []Bone `yaml:"bones"`
}

// SkeletonProvider supplies the bone hierarchy used to order bone tables.
type SkeletonProvider interface {
	Skeleton() (*Skeleton, error)
}

// Skeleton lets a loaded skeleton act as its own provider.
func (s *Skeleton) Skeleton() (*Skeleton, error) {
	return s, nil
}

// Len returns the bone count.
func (s *Skeleton) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bones)
}

// Index returns the first bone named name, or -1.
func (s *Skeleton) Index(name string) int {
	for i := range s.Bones {
		if s.Bones[i].Name == name {
			return i
		}
	}
	return -1
}

// Count returns how many bones are named name.
func (s *Skeleton) Count(name string) int {
	n := 0
	for i := range s.Bones {
		if s.Bones[i].Name == name {
			n++
		}
	}
	return n
}

// Children returns the child lists of every bone and the roots, each in
// bone index order.
func (s *Skeleton) Children() (children [][]int, roots []int) {
	children = make([][]int, len(s.Bones))
	for i, b := range s.Bones {
		if b.Parent < 0 || b.Parent >= len(s.Bones) {
			roots = append(roots, i)
			continue
		}
		children[b.Parent] = append(children[b.Parent], i)
	}
	return children, roots
}

// Validate checks parent indices and rejects cycles.
func (s *Skeleton) Validate() error {
	for i, b := range s.Bones {
		if b.Parent >= len(s.Bones) || b.Parent == i || b.Parent < -1 {
			return fmt.Errorf("%w: bone %d (%s) parent %d", ErrInvalidParent, i, b.Name, b.Parent)
		}
	}
	for i := range s.Bones {
		steps := 0
		for p := s.Bones[i].Parent; p >= 0; p = s.Bones[p].Parent {
			steps++
			if steps > len(s.Bones) {
				return fmt.Errorf("%w: at bone %d (%s)", ErrBoneCycle, i, s.Bones[i].Name)
			}
		}
	}
	return nil
}

// normalizePose fills an unset rotation or scale with identity values.
func (s *Skeleton) normalizePose() {
	for i := range s.Bones {
		b := &s.Bones[i]
		if b.Rotation == [4]float32{} {
			b.Rotation = [4]float32{0, 0, 0, 1}
		}
		if b.Scale == [3]float32{} {
			b.Scale = [3]float32{1, 1, 1}
		}
	}
}
