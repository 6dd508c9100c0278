package convert

import (
	xmath "github.com/xivdev/Xande-sub000/pkg/math"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// generateTangents returns a copy of vertices with tangents computed from
// positions, normals and the first uv set. Per-triangle tangents are
// accumulated per vertex, orthogonalized against the normal, and the
// handedness stored in W.
func generateTangents(vertices []scene.Vertex, indices []uint32) []scene.Vertex {
	out := make([]scene.Vertex, len(vertices))
	copy(out, vertices)

	tan := make([]xmath.Vec3, len(vertices))
	bitan := make([]xmath.Vec3, len(vertices))

	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		if int(i0) >= len(vertices) || int(i1) >= len(vertices) || int(i2) >= len(vertices) {
			continue
		}
		v0, v1, v2 := vertices[i0], vertices[i1], vertices[i2]

		e1 := xmath.Vec3From(v1.Position).Sub(xmath.Vec3From(v0.Position))
		e2 := xmath.Vec3From(v2.Position).Sub(xmath.Vec3From(v0.Position))
		uv0 := xmath.Vec2{X: v0.UV[0], Y: v0.UV[1]}
		d1 := xmath.Vec2{X: v1.UV[0], Y: v1.UV[1]}.Sub(uv0)
		d2 := xmath.Vec2{X: v2.UV[0], Y: v2.UV[1]}.Sub(uv0)

		det := d1.X*d2.Y - d2.X*d1.Y
		if det == 0 {
			continue
		}
		r := 1 / det
		sdir := e1.Scale(d2.Y).Sub(e2.Scale(d1.Y)).Scale(r)
		tdir := e2.Scale(d1.X).Sub(e1.Scale(d2.X)).Scale(r)

		for _, i := range [3]uint32{i0, i1, i2} {
			tan[i] = tan[i].Add(sdir)
			bitan[i] = bitan[i].Add(tdir)
		}
	}

	for i := range out {
		n := xmath.Vec3From(out[i].Normal)
		t := tan[i].Sub(n.Scale(n.Dot(tan[i]))).Normalize()
		if t.IsZero() {
			t = fallbackTangent(n)
		}
		w := float32(1)
		if n.Cross(t).Dot(bitan[i]) < 0 {
			w = -1
		}
		out[i].Tangent = [4]float32{t.X, t.Y, t.Z, w}
		out[i].Has |= scene.AttrTangent
	}
	return out
}

// fallbackTangent picks any unit vector perpendicular to n.
func fallbackTangent(n xmath.Vec3) xmath.Vec3 {
	axis := xmath.Vec3{X: 1}
	if n.X > 0.9 || n.X < -0.9 {
		axis = xmath.Vec3{Y: 1}
	}
	t := axis.Sub(n.Scale(n.Dot(axis))).Normalize()
	if t.IsZero() {
		return xmath.Vec3{X: 1}
	}
	return t
}
