package scene

import (
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	xmath "github.com/xivdev/Xande-sub000/pkg/math"
)

// ToDocument converts sc to a glTF document. Each scene mesh becomes one
// node and one glTF mesh with a primitive per submesh. A skeleton becomes
// a joint node hierarchy and a skin with inverse bind matrices.
func ToDocument(sc *Scene) *gltf.Document {
	doc := gltf.NewDocument()

	skinIndex := -1
	if sc.Skeleton.Len() > 0 {
		skinIndex = writeSkin(doc, sc.Skeleton)
	}

	materials := make(map[string]int)
	for mi := range sc.Meshes {
		m := &sc.Meshes[mi]

		matIdx, ok := materials[m.Material]
		if !ok {
			matIdx = len(doc.Materials)
			doc.Materials = append(doc.Materials, &gltf.Material{Name: m.Material})
			materials[m.Material] = matIdx
		}

		targetNames := meshTargetNames(m)
		gm := &gltf.Mesh{Name: m.Name}
		if len(targetNames) > 0 {
			gm.Extras = map[string]any{extrasTargetNames: targetNames}
		}
		for si := range m.Submeshes {
			prim := writePrimitive(doc, &m.Submeshes[si], targetNames)
			prim.Material = gltf.Index(matIdx)
			gm.Primitives = append(gm.Primitives, prim)
		}
		doc.Meshes = append(doc.Meshes, gm)

		node := &gltf.Node{Name: m.Name, Mesh: gltf.Index(len(doc.Meshes) - 1)}
		if skinIndex >= 0 && m.Attributes().Has(AttrSkin) {
			node.Skin = gltf.Index(skinIndex)
		}
		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}
	return doc
}

// meshTargetNames returns the union of target names over the submeshes in
// first-seen order.
func meshTargetNames(m *Mesh) []string {
	var names []string
	seen := make(map[string]bool)
	for si := range m.Submeshes {
		for _, t := range m.Submeshes[si].Targets {
			if !seen[t.Name] {
				seen[t.Name] = true
				names = append(names, t.Name)
			}
		}
	}
	return names
}

func writeSkin(doc *gltf.Document, skel *Skeleton) int {
	base := len(doc.Nodes)
	children, roots := skel.Children()

	for i, b := range skel.Bones {
		node := &gltf.Node{
			Name:        b.Name,
			Translation: [3]float64{float64(b.Translation[0]), float64(b.Translation[1]), float64(b.Translation[2])},
			Rotation:    [4]float64{float64(b.Rotation[0]), float64(b.Rotation[1]), float64(b.Rotation[2]), float64(b.Rotation[3])},
			Scale:       [3]float64{float64(b.Scale[0]), float64(b.Scale[1]), float64(b.Scale[2])},
		}
		for _, c := range children[i] {
			node.Children = append(node.Children, base+c)
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, r := range roots {
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, base+r)
	}

	world := worldMatrices(skel)
	inverse := make([][4][4]float32, len(world))
	joints := make([]int, len(skel.Bones))
	for i := range skel.Bones {
		inverse[i] = world[i].Inverse().Columns()
		joints[i] = base + i
	}

	doc.Skins = append(doc.Skins, &gltf.Skin{
		Name:                "skeleton",
		Joints:              joints,
		InverseBindMatrices: gltf.Index(modeler.WriteAccessor(doc, gltf.TargetNone, inverse)),
	})
	return len(doc.Skins) - 1
}

// worldMatrices composes the reference pose of every bone with its parents.
func worldMatrices(skel *Skeleton) []xmath.Mat4 {
	world := make([]xmath.Mat4, len(skel.Bones))
	done := make([]bool, len(skel.Bones))
	var resolve func(i int) xmath.Mat4
	resolve = func(i int) xmath.Mat4 {
		if done[i] {
			return world[i]
		}
		b := skel.Bones[i]
		local := xmath.Compose(b.Translation, xmath.QuatFrom(b.Rotation), b.Scale)
		if b.Parent >= 0 && b.Parent < len(skel.Bones) {
			local = resolve(b.Parent).Mul(local)
		}
		world[i] = local
		done[i] = true
		return local
	}
	for i := range skel.Bones {
		resolve(i)
	}
	return world
}

func writePrimitive(doc *gltf.Document, sub *Submesh, targetNames []string) *gltf.Primitive {
	n := len(sub.Vertices)
	has := Attribute(0)
	if n > 0 {
		has = sub.Vertices[0].Has
	}

	positions := make([][3]float32, n)
	for i, v := range sub.Vertices {
		positions[i] = v.Position
	}
	prim := &gltf.Primitive{
		Mode:       gltf.PrimitiveTriangles,
		Attributes: gltf.PrimitiveAttributes{gltf.POSITION: modeler.WritePosition(doc, positions)},
		Indices:    gltf.Index(modeler.WriteIndices(doc, sub.Indices)),
	}

	if has.Has(AttrNormal) {
		normals := make([][3]float32, n)
		for i, v := range sub.Vertices {
			normals[i] = v.Normal
		}
		prim.Attributes[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
	}
	if has.Has(AttrTangent) {
		tangents := make([][4]float32, n)
		for i, v := range sub.Vertices {
			tangents[i] = v.Tangent
		}
		prim.Attributes[gltf.TANGENT] = modeler.WriteTangent(doc, tangents)
	}
	if has.Has(AttrColor) {
		colors := make([][4]uint8, n)
		for i, v := range sub.Vertices {
			for c := 0; c < 4; c++ {
				colors[i][c] = unitByte(v.Color[c])
			}
		}
		prim.Attributes[gltf.COLOR_0] = modeler.WriteColor(doc, colors)
	}
	if has.Has(AttrUV) {
		uv0 := make([][2]float32, n)
		uv1 := make([][2]float32, n)
		for i, v := range sub.Vertices {
			uv0[i] = [2]float32{v.UV[0], v.UV[1]}
			uv1[i] = [2]float32{v.UV[2], v.UV[3]}
		}
		prim.Attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uv0)
		prim.Attributes[gltf.TEXCOORD_1] = modeler.WriteTextureCoord(doc, uv1)
	}
	if has.Has(AttrSkin) {
		joints := make([][4]uint16, n)
		weights := make([][4]float32, n)
		for i, v := range sub.Vertices {
			joints[i] = v.BlendIndices
			weights[i] = v.BlendWeights
		}
		prim.Attributes[gltf.JOINTS_0] = modeler.WriteJoints(doc, joints)
		prim.Attributes[gltf.WEIGHTS_0] = modeler.WriteWeights(doc, weights)
	}

	if len(targetNames) > 0 {
		byName := make(map[string]*MorphTarget, len(sub.Targets))
		for i := range sub.Targets {
			byName[sub.Targets[i].Name] = &sub.Targets[i]
		}
		for _, name := range targetNames {
			deltas := make([][3]float32, n)
			if t, ok := byName[name]; ok {
				copy(deltas, t.PositionDeltas)
			}
			prim.Targets = append(prim.Targets, gltf.PrimitiveAttributes{
				gltf.POSITION: modeler.WritePosition(doc, deltas),
			})
		}
	}

	if len(sub.Attributes) > 0 {
		prim.Extras = map[string]any{extrasAttributes: sub.Attributes}
	}
	return prim
}

func unitByte(x float32) uint8 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 255
	}
	return uint8(x*255 + 0.5)
}
