package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// glTF extras keys.
const (
	extrasAttributes  = "attributes"
	extrasTargetNames = "targetNames"
)

// ErrUnsupportedPrimitive is returned for non-triangle glTF primitives.
var ErrUnsupportedPrimitive = errors.New("unsupported primitive")

// LoadGLTF reads a .gltf or .glb file.
func LoadGLTF(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return FromDocument(doc)
}

// FromDocument converts a glTF document. Primitives of one glTF mesh are
// grouped into scene meshes by material; the first skin becomes the skeleton.
func FromDocument(doc *gltf.Document) (*Scene, error) {
	sc := &Scene{}

	if len(doc.Skins) > 0 {
		skel, err := skeletonFromSkin(doc, doc.Skins[0])
		if err != nil {
			return nil, err
		}
		sc.Skeleton = skel
	}

	for mi, gm := range doc.Meshes {
		targetNames := stringList(gm.Extras, extrasTargetNames)

		var order []string
		groups := make(map[string]*Mesh)
		for pi, prim := range gm.Primitives {
			sub, err := readPrimitive(doc, prim, targetNames)
			if err != nil {
				return nil, fmt.Errorf("mesh %d (%s) primitive %d: %w", mi, gm.Name, pi, err)
			}
			material := ""
			if prim.Material != nil && *prim.Material < len(doc.Materials) {
				material = doc.Materials[*prim.Material].Name
			}
			m, ok := groups[material]
			if !ok {
				m = &Mesh{Name: gm.Name, Material: material}
				groups[material] = m
				order = append(order, material)
			}
			m.Submeshes = append(m.Submeshes, sub)
		}
		for i, material := range order {
			m := groups[material]
			if i > 0 {
				m.Name = fmt.Sprintf("%s.%d", gm.Name, i)
			}
			sc.Meshes = append(sc.Meshes, *m)
		}
	}
	return sc, nil
}

func skeletonFromSkin(doc *gltf.Document, skin *gltf.Skin) (*Skeleton, error) {
	parentNode := make(map[int]int)
	for ni, n := range doc.Nodes {
		for _, c := range n.Children {
			parentNode[c] = ni
		}
	}
	jointIndex := make(map[int]int, len(skin.Joints))
	for ji, node := range skin.Joints {
		jointIndex[node] = ji
	}

	skel := &Skeleton{Bones: make([]Bone, len(skin.Joints))}
	for ji, node := range skin.Joints {
		if node < 0 || node >= len(doc.Nodes) {
			return nil, fmt.Errorf("%w: joint %d references node %d", ErrInvalidParent, ji, node)
		}
		n := doc.Nodes[node]
		parent := -1
		if p, ok := parentNode[node]; ok {
			if pj, ok := jointIndex[p]; ok {
				parent = pj
			}
		}
		t, r, s := n.TranslationOrDefault(), n.RotationOrDefault(), n.ScaleOrDefault()
		skel.Bones[ji] = Bone{
			Name:        n.Name,
			Parent:      parent,
			Translation: [3]float32{float32(t[0]), float32(t[1]), float32(t[2])},
			Rotation:    [4]float32{float32(r[0]), float32(r[1]), float32(r[2]), float32(r[3])},
			Scale:       [3]float32{float32(s[0]), float32(s[1]), float32(s[2])},
		}
	}
	if err := skel.Validate(); err != nil {
		return nil, err
	}
	return skel, nil
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive, targetNames []string) (Submesh, error) {
	var sub Submesh
	if prim.Mode != gltf.PrimitiveTriangles {
		return sub, fmt.Errorf("%w: mode %d", ErrUnsupportedPrimitive, prim.Mode)
	}
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return sub, fmt.Errorf("%w: no POSITION", ErrUnsupportedPrimitive)
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return sub, fmt.Errorf("reading positions: %w", err)
	}

	sub.Vertices = make([]Vertex, len(positions))
	for i, p := range positions {
		sub.Vertices[i].Position = p
	}

	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, err := modeler.ReadNormal(doc, doc.Accessors[idx], nil)
		if err != nil {
			return sub, fmt.Errorf("reading normals: %w", err)
		}
		for i := range sub.Vertices {
			if i < len(normals) {
				sub.Vertices[i].Normal = normals[i]
			}
			sub.Vertices[i].Has |= AttrNormal
		}
	}
	if idx, ok := prim.Attributes[gltf.TANGENT]; ok {
		tangents, err := modeler.ReadTangent(doc, doc.Accessors[idx], nil)
		if err != nil {
			return sub, fmt.Errorf("reading tangents: %w", err)
		}
		for i := range sub.Vertices {
			if i < len(tangents) {
				sub.Vertices[i].Tangent = tangents[i]
			}
			sub.Vertices[i].Has |= AttrTangent
		}
	}
	if idx, ok := prim.Attributes[gltf.COLOR_0]; ok {
		colors, err := modeler.ReadColor(doc, doc.Accessors[idx], nil)
		if err != nil {
			return sub, fmt.Errorf("reading colors: %w", err)
		}
		for i := range sub.Vertices {
			if i < len(colors) {
				c := colors[i]
				sub.Vertices[i].Color = [4]float32{
					float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255, float32(c[3]) / 255,
				}
			}
			sub.Vertices[i].Has |= AttrColor
		}
	}
	for set, key := range []string{gltf.TEXCOORD_0, gltf.TEXCOORD_1} {
		idx, ok := prim.Attributes[key]
		if !ok {
			continue
		}
		uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
		if err != nil {
			return sub, fmt.Errorf("reading %s: %w", key, err)
		}
		for i := range sub.Vertices {
			if i < len(uvs) {
				sub.Vertices[i].UV[set*2] = uvs[i][0]
				sub.Vertices[i].UV[set*2+1] = uvs[i][1]
			}
			sub.Vertices[i].Has |= AttrUV
		}
	}
	jIdx, hasJoints := prim.Attributes[gltf.JOINTS_0]
	wIdx, hasWeights := prim.Attributes[gltf.WEIGHTS_0]
	if hasJoints && hasWeights {
		joints, err := modeler.ReadJoints(doc, doc.Accessors[jIdx], nil)
		if err != nil {
			return sub, fmt.Errorf("reading joints: %w", err)
		}
		weights, err := modeler.ReadWeights(doc, doc.Accessors[wIdx], nil)
		if err != nil {
			return sub, fmt.Errorf("reading weights: %w", err)
		}
		for i := range sub.Vertices {
			if i < len(joints) {
				sub.Vertices[i].BlendIndices = joints[i]
			}
			if i < len(weights) {
				sub.Vertices[i].BlendWeights = weights[i]
			}
			sub.Vertices[i].Has |= AttrSkin
		}
	}

	if prim.Indices != nil {
		sub.Indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return sub, fmt.Errorf("reading indices: %w", err)
		}
	} else {
		sub.Indices = make([]uint32, len(positions))
		for i := range sub.Indices {
			sub.Indices[i] = uint32(i)
		}
	}

	for ti, target := range prim.Targets {
		name := fmt.Sprintf("shape_%d", ti)
		if ti < len(targetNames) && targetNames[ti] != "" {
			name = targetNames[ti]
		}
		mt := MorphTarget{Name: name}
		if idx, ok := target[gltf.POSITION]; ok {
			if mt.PositionDeltas, err = modeler.ReadPosition(doc, doc.Accessors[idx], nil); err != nil {
				return sub, fmt.Errorf("reading target %s positions: %w", name, err)
			}
		}
		if idx, ok := target[gltf.NORMAL]; ok {
			if mt.NormalDeltas, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
				return sub, fmt.Errorf("reading target %s normals: %w", name, err)
			}
		}
		sub.Targets = append(sub.Targets, mt)
	}

	sub.Attributes = stringList(prim.Extras, extrasAttributes)
	return sub, nil
}

// stringList reads a []string stored under key in a glTF extras object.
func stringList(extras any, key string) []string {
	m, ok := extras.(map[string]any)
	if !ok {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SaveGLTF writes sc as .glb or .gltf, chosen by extension.
func SaveGLTF(sc *Scene, path string) error {
	doc := ToDocument(sc)
	if strings.EqualFold(filepath.Ext(path), ".glb") {
		return gltf.SaveBinary(doc, path)
	}
	return gltf.Save(doc, path)
}
