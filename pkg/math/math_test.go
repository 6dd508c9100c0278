package math

import (
	"math"
	"testing"
)

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	got := x.Cross(y)
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestVec3Normalize(t *testing.T) {
	n := Vec3{3, 0, 4}.Normalize()
	if l := n.Length(); l < 0.999 || l > 1.001 {
		t.Errorf("Normalize().Length() = %v, want ~1", l)
	}
	if z := (Vec3{}).Normalize(); !z.IsZero() {
		t.Errorf("zero Normalize() = %v, want zero", z)
	}
}

func TestComposeTranslateOnly(t *testing.T) {
	m := Compose([3]float32{10, 20, 30}, QuatIdentity(), [3]float32{1, 1, 1})
	got := m.TransformPoint([3]float32{1, 2, 3})
	want := [3]float32{11, 22, 33}
	if got != want {
		t.Errorf("TransformPoint = %v, want %v", got, want)
	}
}

func TestComposeOrder(t *testing.T) {
	// 90 degrees about Y, then scale 2, then translate.
	s := float32(math.Sin(math.Pi / 4))
	rot := Quat{X: 0, Y: s, Z: 0, W: s}
	m := Compose([3]float32{0, 5, 0}, rot, [3]float32{2, 2, 2})

	got := m.TransformPoint([3]float32{1, 0, 0})
	want := [3]float32{0, 5, -2}
	for i := range want {
		if abs(got[i]-want[i]) > 0.001 {
			t.Fatalf("TransformPoint = %v, want %v", got, want)
		}
	}
}

func TestInverse(t *testing.T) {
	m := Compose([3]float32{1, 2, 3}, QuatFrom([4]float32{0.1, 0.2, 0.3, 0.9}), [3]float32{2, 2, 2})
	id := m.Mul(m.Inverse())
	want := Identity()
	for i := range want {
		if abs(id[i]-want[i]) > 0.001 {
			t.Errorf("M * M^-1 element %d = %f, want %f", i, id[i], want[i])
		}
	}
}

func TestInverseSingular(t *testing.T) {
	if got := Scale(0, 0, 0).Inverse(); got != Identity() {
		t.Errorf("singular Inverse() = %v, want identity", got)
	}
}

func TestColumns(t *testing.T) {
	cols := Translate(5, 6, 7).Columns()
	if cols[3] != [4]float32{5, 6, 7, 1} {
		t.Errorf("translation column = %v", cols[3])
	}
	if cols[0] != [4]float32{1, 0, 0, 0} {
		t.Errorf("first column = %v", cols[0])
	}
}

func TestQuatToMat4Identity(t *testing.T) {
	m := QuatIdentity().ToMat4()
	identity := Identity()
	for i := 0; i < 16; i++ {
		if math.Abs(float64(m[i]-identity[i])) > 0.0001 {
			t.Errorf("element %d: got %v, want %v", i, m[i], identity[i])
		}
	}
}

func TestQuatNormalize(t *testing.T) {
	n := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()
	length := float32(math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
	if (Quat{}).Normalize() != QuatIdentity() {
		t.Error("zero quaternion should normalize to identity")
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
