package convert

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

func triangle(x float32) []scene.Vertex {
	return []scene.Vertex{
		{Position: [3]float32{x, 0, 0}},
		{Position: [3]float32{x + 1, 0, 0}},
		{Position: [3]float32{x, 1, 0}},
	}
}

func positions(n int, x float32) []scene.Vertex {
	vs := make([]scene.Vertex, n)
	for i := range vs {
		vs[i].Position = [3]float32{x + float32(i), 0, 0}
	}
	return vs
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 4
	return opts
}

func mustBuild(t *testing.T, sc *scene.Scene, opts Options) (*mdl.Model, *Report) {
	t.Helper()
	m, report, err := Build(sc, opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m, report
}

func TestBuild_SingleTriangle(t *testing.T) {
	sc := &scene.Scene{Meshes: []scene.Mesh{{
		Material: "mat.mtrl",
		Submeshes: []scene.Submesh{{
			Vertices: triangle(0),
			Indices:  []uint32{0, 1, 2},
		}},
	}}}

	m, report := mustBuild(t, sc, testOptions())
	if report.Len() != 0 {
		t.Errorf("unexpected violations: %v", report.Err())
	}

	mesh := m.Meshes[0]
	if mesh.VertexCount != 3 || mesh.IndexCount != 3 || mesh.SubmeshCount != 1 {
		t.Errorf("mesh = %+v", mesh)
	}
	if m.BoneTables[0].BoneCount != 0 {
		t.Errorf("bone count = %d, want 0", m.BoneTables[0].BoneCount)
	}
	if want := []byte{0x00, 0x00, 0x01, 0x00, 0x02, 0x00}; !bytes.Equal(m.IndexBuffers[0], want) {
		t.Errorf("index bytes = % x, want % x", m.IndexBuffers[0], want)
	}
	if got := m.MaterialNames(); !reflect.DeepEqual(got, []string{"mat.mtrl"}) {
		t.Errorf("materials = %v", got)
	}
	if len(m.VertexBuffers[0]) != 3*12 {
		t.Errorf("vertex bytes = %d, want 36", len(m.VertexBuffers[0]))
	}

	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if uint32(len(data)) != m.FileSize() {
		t.Errorf("wrote %d bytes, FileSize() = %d", len(data), m.FileSize())
	}
	if m.Lods[1].VertexDataOffset != m.FileSize() || m.FileHeader.IndexOffset[2] != m.FileSize() {
		t.Errorf("unused LOD offsets are not the file size")
	}
	if m.FileHeader.LodCount != 1 || m.ModelHeader.LodCount != 1 {
		t.Errorf("lod counts = %d/%d", m.FileHeader.LodCount, m.ModelHeader.LodCount)
	}
	if m.Lods[0].PolygonCount != 1 {
		t.Errorf("polygon count = %d", m.Lods[0].PolygonCount)
	}
}

func TestBuild_SubmeshVertexOffsets(t *testing.T) {
	sc := &scene.Scene{Meshes: []scene.Mesh{{
		Material: "mat.mtrl",
		Submeshes: []scene.Submesh{
			{Vertices: positions(10, 0), Indices: []uint32{0, 1, 2}},
			{Vertices: positions(5, 20), Indices: []uint32{0, 1, 2}},
			{Vertices: positions(7, 40), Indices: []uint32{0, 1, 2}},
		},
	}}}

	m, _ := mustBuild(t, sc, testOptions())

	sub := m.Submeshes[2]
	if sub.IndexOffset != 6 || sub.IndexCount != 3 {
		t.Fatalf("submesh 2 = %+v", sub)
	}
	ib := m.IndexBuffers[0]
	for i, want := range []uint16{15, 16, 17} {
		got := uint16(ib[(6+i)*2]) | uint16(ib[(6+i)*2+1])<<8
		if got != want {
			t.Errorf("index %d = %d, want %d", i, got, want)
		}
	}
	if m.Meshes[0].VertexCount != 22 {
		t.Errorf("vertex count = %d, want 22", m.Meshes[0].VertexCount)
	}
}

func TestBuild_BoundingBoxes(t *testing.T) {
	sc := &scene.Scene{Meshes: []scene.Mesh{
		{
			Material: "a.mtrl",
			Submeshes: []scene.Submesh{
				{Vertices: []scene.Vertex{{Position: [3]float32{-1, 0, 2}}, {Position: [3]float32{1, 3, 0}}}, Indices: []uint32{0, 1, 0}},
				{Vertices: []scene.Vertex{{Position: [3]float32{0, -2, 0}}}, Indices: []uint32{0, 0, 0}},
			},
		},
		{
			Material: "b.mtrl",
			Submeshes: []scene.Submesh{
				{Vertices: []scene.Vertex{{Position: [3]float32{0, 0, -4}}}, Indices: []uint32{0, 0, 0}},
			},
		},
	}}

	b := &builder{opts: testOptions(), report: newReport(zap.NewNop())}
	b.opts.normalize()
	bm, err := b.assembleMesh(0, &sc.Meshes[0])
	if err != nil {
		t.Fatal(err)
	}
	got := bm.bounds.record()
	want := mdl.BoundingBox{Min: [4]float32{-1, -2, 0, 1}, Max: [4]float32{1, 3, 2, 1}}
	if got != want {
		t.Errorf("mesh box = %+v, want %+v", got, want)
	}

	m, _ := mustBuild(t, sc, testOptions())
	want = mdl.BoundingBox{Min: [4]float32{-1, -2, -4, 1}, Max: [4]float32{1, 3, 2, 1}}
	if m.BoundingBoxes != want || m.ModelBoundingBoxes != want {
		t.Errorf("model box = %+v, want %+v", m.BoundingBoxes, want)
	}
	if m.WaterBoundingBoxes != (mdl.BoundingBox{}) {
		t.Errorf("water box = %+v, want zero", m.WaterBoundingBoxes)
	}
	// Farthest corner is the min corner (-1, -2, -4).
	if want := float32(math.Sqrt(21)); math.Abs(float64(m.ModelHeader.Radius-want)) > 1e-5 {
		t.Errorf("radius = %v, want %v", m.ModelHeader.Radius, want)
	}
}

func skinnedVertex(x, y float32, joints [4]uint16, weights [4]float32) scene.Vertex {
	return scene.Vertex{
		Has:          scene.AttrNormal | scene.AttrUV | scene.AttrColor | scene.AttrSkin,
		Position:     [3]float32{x, y, 0},
		Normal:       [3]float32{0, 0, 1},
		Color:        [4]float32{1, 0, 0, 1},
		UV:           [4]float32{x, y, 0.5, 0.25},
		BlendWeights: weights,
		BlendIndices: joints,
	}
}

func skinnedScene() *scene.Scene {
	one := [4]float32{1, 0, 0, 0}
	return &scene.Scene{
		Skeleton: testSkeleton(),
		Meshes: []scene.Mesh{{
			Name:     "body",
			Material: "/mt_c0101.mtrl",
			Submeshes: []scene.Submesh{
				{
					Vertices: []scene.Vertex{
						skinnedVertex(0, 0, [4]uint16{1}, one),
						skinnedVertex(1, 0, [4]uint16{1}, one),
						skinnedVertex(0, 1, [4]uint16{1}, one),
						skinnedVertex(1, 1, [4]uint16{1}, one),
					},
					Indices:    []uint32{0, 1, 2, 2, 1, 3},
					Attributes: []string{"atr_a"},
					Targets: []scene.MorphTarget{{
						Name:           "shp_a",
						PositionDeltas: [][3]float32{{0, 0, 0}, {0, 0, 0.25}, {0, 0, 0}, {0, 0, 0}},
					}},
				},
				{
					Vertices: []scene.Vertex{
						skinnedVertex(2, 0, [4]uint16{2, 1}, [4]float32{0.6, 0.4, 0, 0}),
						skinnedVertex(3, 0, [4]uint16{2}, one),
						skinnedVertex(2, 1, [4]uint16{4}, one),
					},
					Indices:    []uint32{0, 1, 2},
					Attributes: []string{"atr_b", "atr_a"},
				},
			},
		}},
	}
}

func TestBuild_BoneNameSetRoundTrip(t *testing.T) {
	m, _ := mustBuild(t, skinnedScene(), testOptions())

	data, err := m.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := mdl.Parse(data)
	if err != nil {
		t.Fatal(err)
	}

	names := parsed.BoneNames()
	got := make(map[string]bool)
	for _, idx := range parsed.BoneTables[0].Bones() {
		got[names[idx]] = true
	}
	want := map[string]bool{"j_kosi": true, "j_sebo_a": true, "j_ude_a_l": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bone table names = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(names, []string{"j_kosi", "j_sebo_a", "j_ude_a_l"}) {
		t.Errorf("model bones = %v", names)
	}

	// The second submesh uses slots 0 (j_kosi), 1 (j_sebo_a) and 2 (j_ude_a_l).
	sub := parsed.Submeshes[1]
	run := parsed.SubmeshBoneMap[sub.BoneStartIndex : sub.BoneStartIndex+sub.BoneCount]
	if !reflect.DeepEqual(run, []uint16{0, 1, 2}) {
		t.Errorf("submesh bone map = %v", run)
	}
}

func TestBuild_Shapes(t *testing.T) {
	sc := skinnedScene()
	second := sc.Meshes[0]
	second.Name = "legs"
	second.Material = "/mt_c0101_b.mtrl"
	sc.Meshes = append(sc.Meshes, second)

	m, _ := mustBuild(t, sc, testOptions())

	if len(m.Shapes) != 1 || m.Shapes[0].ShapeMeshCount[0] != 2 || m.Shapes[0].ShapeMeshStartIndex[0] != 0 {
		t.Fatalf("shapes = %+v", m.Shapes)
	}
	if names := m.ShapeNames(); !reflect.DeepEqual(names, []string{"shp_a"}) {
		t.Errorf("shape names = %v", names)
	}

	// Vertex 1 of the quad is referenced by slots 1 and 4; its replacement
	// is the first vertex after the 7 base vertices.
	want := []mdl.ShapeValue{
		{BaseIndicesIndex: 1, ReplacingVertexIndex: 7},
		{BaseIndicesIndex: 4, ReplacingVertexIndex: 7},
	}
	for i, sm := range m.ShapeMeshes {
		if sm.MeshIndexOffset != m.Meshes[i].StartIndex {
			t.Errorf("shape mesh %d offset = %d, want %d", i, sm.MeshIndexOffset, m.Meshes[i].StartIndex)
		}
		if sm.ShapeValueCount != 2 || sm.ShapeValueOffset != uint32(i*2) {
			t.Errorf("shape mesh %d = %+v", i, sm)
		}
		got := m.ShapeValues[sm.ShapeValueOffset : sm.ShapeValueOffset+sm.ShapeValueCount]
		if !reflect.DeepEqual(got, want) {
			t.Errorf("shape mesh %d values = %+v, want %+v", i, got, want)
		}
	}
	if m.Meshes[0].VertexCount != 8 {
		t.Errorf("vertex count = %d, want 8", m.Meshes[0].VertexCount)
	}
	if m.Meshes[1].StartIndex != 9 {
		t.Errorf("second mesh start = %d, want 9", m.Meshes[1].StartIndex)
	}
}

func TestBuild_DeterministicAcrossWorkers(t *testing.T) {
	var outputs [][]byte
	for _, workers := range []int{1, 8} {
		opts := testOptions()
		opts.Workers = workers
		m, _ := mustBuild(t, skinnedScene(), opts)
		data, err := m.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("output differs between worker counts")
	}
}

// chainSkeleton returns n bones, each parented to the previous one.
func chainSkeleton(n int) *scene.Skeleton {
	skel := &scene.Skeleton{}
	for i := 0; i < n; i++ {
		skel.Bones = append(skel.Bones, bone(fmt.Sprintf("j_%02d", i), i-1))
	}
	return skel
}

// repeatedTriangle returns a submesh drawing one shaped triangle over
// slots index slots.
func repeatedTriangle(slots int) scene.Submesh {
	sub := scene.Submesh{
		Vertices: []scene.Vertex{
			skinnedVertex(0, 0, [4]uint16{1}, [4]float32{1}),
			skinnedVertex(1, 0, [4]uint16{1}, [4]float32{1}),
			skinnedVertex(0, 1, [4]uint16{1}, [4]float32{1}),
		},
		Targets: []scene.MorphTarget{{
			Name:           "shp_b",
			PositionDeltas: [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		}},
	}
	sub.Indices = make([]uint32, slots)
	for i := range sub.Indices {
		sub.Indices[i] = uint32(i % 3)
	}
	return sub
}

func TestBuild_Violations(t *testing.T) {
	tests := []struct {
		name   string
		modify func(sc *scene.Scene, opts *Options)
		want   ViolationKind
		check  func(t *testing.T, m *mdl.Model, report *Report)
	}{
		{
			name: "too many bones",
			modify: func(sc *scene.Scene, _ *Options) {
				sc.Skeleton = chainSkeleton(70)
				sub := scene.Submesh{}
				for j := 0; j < 70; j++ {
					sub.Vertices = append(sub.Vertices, skinnedVertex(float32(j), 0, [4]uint16{uint16(j)}, [4]float32{1}))
					sub.Indices = append(sub.Indices, uint32(j))
				}
				sc.Meshes[0].Submeshes = append(sc.Meshes[0].Submeshes, sub)
			},
			want: TooManyBones,
			check: func(t *testing.T, m *mdl.Model, _ *Report) {
				if got := m.BoneTables[0].BoneCount; got != mdl.MaxBonesPerTable {
					t.Errorf("BoneCount = %d, want %d", got, mdl.MaxBonesPerTable)
				}
				if got := m.ModelHeader.BoneCount; got != mdl.MaxBonesPerTable {
					t.Errorf("model BoneCount = %d, want %d", got, mdl.MaxBonesPerTable)
				}
			},
		},
		{
			name: "shape slot beyond 16 bits",
			modify: func(sc *scene.Scene, _ *Options) {
				sc.Meshes[0].Submeshes = append(sc.Meshes[0].Submeshes, repeatedTriangle(70002))
			},
			want: ShapeIndexOverflow,
			check: func(t *testing.T, _ *mdl.Model, report *Report) {
				for _, v := range report.Violations {
					if v.Kind == ShapeIndexOverflow && (v.Mesh != 0 || v.Submesh != 2) {
						t.Errorf("overflow reported at mesh %d submesh %d, want 0/2", v.Mesh, v.Submesh)
					}
				}
			},
		},
		{
			name: "shape value total beyond 16 bits",
			modify: func(sc *scene.Scene, _ *Options) {
				for i := 0; i < 2; i++ {
					sc.Meshes = append(sc.Meshes, scene.Mesh{
						Name:      fmt.Sprintf("extra_%d", i),
						Material:  "/mt_c0101.mtrl",
						Submeshes: []scene.Submesh{repeatedTriangle(40000)},
					})
				}
			},
			want: ShapeIndexOverflow,
			check: func(t *testing.T, m *mdl.Model, report *Report) {
				if len(m.ShapeValues) <= 0xFFFF {
					t.Fatalf("shape values = %d, expected more than 65535", len(m.ShapeValues))
				}
				for _, v := range report.Violations {
					if v.Kind == ShapeIndexOverflow && v.Mesh != -1 {
						t.Errorf("overflow tied to mesh %d, want model-wide", v.Mesh)
					}
				}
			},
		},
		{
			name:   "missing material",
			modify: func(sc *scene.Scene, _ *Options) { sc.Meshes[0].Material = "" },
			want:   MissingMaterial,
		},
		{
			name:   "too many vertices",
			modify: func(_ *scene.Scene, opts *Options) { opts.MaxVertices = 5 },
			want:   TooManyVertices,
		},
		{
			name: "stream key mismatch",
			modify: func(sc *scene.Scene, _ *Options) {
				sc.Meshes[0].Submeshes[0].Targets[0].PositionDeltas = [][3]float32{{0, 0, 1}}
			},
			want: StreamKeyMismatch,
		},
		{
			name: "too many attributes",
			modify: func(sc *scene.Scene, _ *Options) {
				var attrs []string
				for i := 0; i < 33; i++ {
					attrs = append(attrs, fmt.Sprintf("atr_%02d", i))
				}
				sc.Meshes[0].Submeshes[1].Attributes = attrs
			},
			want: TooManyAttributes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			sc := skinnedScene()
			opts := testOptions()
			opts.Logger = zap.New(core)
			tt.modify(sc, &opts)

			m, report, err := Build(sc, opts)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if m == nil {
				t.Fatal("no model produced")
			}
			if !report.Has(tt.want) {
				t.Errorf("report = %v, want %s", report.Violations, tt.want)
			}
			if tt.check != nil {
				tt.check(t, m, report)
			}
			if logs.FilterMessage("conversion violation").Len() != report.Len() {
				t.Errorf("logged %d violations, report has %d", logs.Len(), report.Len())
			}

			opts.Strict = true
			sc = skinnedScene()
			tt.modify(sc, &opts)
			m, _, err = Build(sc, opts)
			if !errors.Is(err, ErrViolations) {
				t.Errorf("strict Build() error = %v, want ErrViolations", err)
			}
			var v Violation
			if !errors.As(err, &v) {
				t.Errorf("strict error does not carry a Violation: %v", err)
			}
			if m != nil {
				t.Error("strict Build() returned a model")
			}
		})
	}
}

func TestBuild_MissingMaterialFallback(t *testing.T) {
	sc := skinnedScene()
	sc.Meshes[0].Material = ""
	m, _ := mustBuild(t, sc, testOptions())
	if got := m.MaterialNames(); !reflect.DeepEqual(got, []string{"/mt_default.mtrl"}) {
		t.Errorf("materials = %v", got)
	}
}

func TestBuild_AttributeMaskCap(t *testing.T) {
	sc := skinnedScene()
	var attrs []string
	for i := 0; i < 33; i++ {
		attrs = append(attrs, fmt.Sprintf("atr_%02d", i))
	}
	sc.Meshes[0].Submeshes[0].Attributes = attrs
	sc.Meshes[0].Submeshes[1].Attributes = []string{"atr_32"}

	m, _ := mustBuild(t, sc, testOptions())
	if m.Submeshes[0].AttributeIndexMask != 0xFFFFFFFF {
		t.Errorf("mask 0 = %#x", m.Submeshes[0].AttributeIndexMask)
	}
	if m.Submeshes[1].AttributeIndexMask != 0 {
		t.Errorf("mask 1 = %#x, want 0", m.Submeshes[1].AttributeIndexMask)
	}
	if m.ModelHeader.AttributeCount != 33 {
		t.Errorf("attribute count = %d", m.ModelHeader.AttributeCount)
	}
}

func TestBuild_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(sc *scene.Scene, opts *Options)
		wantErr error
	}{
		{
			name:    "skeleton required",
			modify:  func(sc *scene.Scene, _ *Options) { sc.Skeleton = nil },
			wantErr: ErrSkeletonRequired,
		},
		{
			name: "joint outside skeleton",
			modify: func(sc *scene.Scene, _ *Options) {
				sc.Meshes[0].Submeshes[0].Vertices[0].BlendIndices[0] = 99
			},
			wantErr: ErrUnresolvableSkeleton,
		},
		{
			name: "skeleton provider fails",
			modify: func(_ *scene.Scene, opts *Options) {
				opts.Skeleton = scene.SkeletonFile{Path: "does-not-exist.yaml"}
			},
			wantErr: ErrUnresolvableSkeleton,
		},
		{
			name: "index out of range",
			modify: func(sc *scene.Scene, _ *Options) {
				sc.Meshes[0].Submeshes[1].Indices[2] = 3
			},
			wantErr: ErrIndexOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := skinnedScene()
			opts := testOptions()
			tt.modify(sc, &opts)
			m, _, err := Build(sc, opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
			if m != nil {
				t.Error("model returned on fatal error")
			}
		})
	}
}

func TestBuild_Template(t *testing.T) {
	tmpl, _ := mustBuild(t, skinnedScene(), testOptions())
	tmpl.BoundingBoxes = mdl.BoundingBox{Min: [4]float32{-5, -5, -5, 1}, Max: [4]float32{5, 5, 5, 1}}
	tmpl.WaterBoundingBoxes = mdl.BoundingBox{Max: [4]float32{1, 1, 1, 1}}
	tmpl.BoneBoundingBoxes[1] = mdl.BoundingBox{Max: [4]float32{2, 2, 2, 1}}
	tmpl.ModelHeader.ModelClipOutDistance = 42
	tmpl.ModelHeader.Flags2 = 0x11
	tmpl.Lods[0].ModelLodRange = 7
	tmpl.FileHeader.Version = 0x01000006
	off, _ := tmplOffset(tmpl, "j_sebo_a")
	tmpl.ElementIDs = []mdl.ElementID{{ElementID: 9, ParentBoneName: off, Translate: [3]float32{1, 2, 3}}}

	opts := testOptions()
	opts.Template = tmpl
	m, _ := mustBuild(t, skinnedScene(), opts)

	if m.BoundingBoxes != tmpl.BoundingBoxes || m.WaterBoundingBoxes != tmpl.WaterBoundingBoxes {
		t.Errorf("bounding boxes not taken from template")
	}
	if m.BoneBoundingBoxes[1] != tmpl.BoneBoundingBoxes[1] {
		t.Errorf("bone box = %+v", m.BoneBoundingBoxes[1])
	}
	if m.ModelHeader.ModelClipOutDistance != 42 || m.Lods[0].ModelLodRange != 7 {
		t.Errorf("clip distance / lod range not merged")
	}
	if m.ModelHeader.Flags2 != 0x01 {
		t.Errorf("flags2 = %#x, want extra LOD bit cleared", m.ModelHeader.Flags2)
	}
	if m.FileHeader.Version != 0x01000006 {
		t.Errorf("version = %#x", m.FileHeader.Version)
	}

	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := mdl.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.ElementIDs) != 1 || parsed.String(parsed.ElementIDs[0].ParentBoneName) != "j_sebo_a" {
		t.Errorf("element ids = %+v", parsed.ElementIDs)
	}

	opts.Merge = MergePolicy{}
	m, _ = mustBuild(t, skinnedScene(), opts)
	if m.BoundingBoxes == tmpl.BoundingBoxes || len(m.ElementIDs) != 0 || m.FileHeader.Version != mdl.DefaultVersion {
		t.Errorf("empty merge policy still used the template")
	}
}

func tmplOffset(m *mdl.Model, name string) (uint32, bool) {
	for _, off := range m.BoneNameOffsets {
		if m.String(off) == name {
			return off, true
		}
	}
	return 0, false
}

func TestBuildExtractRoundTrip(t *testing.T) {
	in := skinnedScene()
	m, _ := mustBuild(t, in, testOptions())

	data, err := m.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := mdl.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Extract(parsed, in.Skeleton)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(out.Meshes) != 1 || len(out.Meshes[0].Submeshes) != 2 {
		t.Fatalf("extracted %d meshes", len(out.Meshes))
	}
	mesh := out.Meshes[0]
	if mesh.Material != "/mt_c0101.mtrl" {
		t.Errorf("material = %q", mesh.Material)
	}

	for si, sub := range mesh.Submeshes {
		want := in.Meshes[0].Submeshes[si]
		if !reflect.DeepEqual(sub.Indices, want.Indices) {
			t.Errorf("submesh %d indices = %v, want %v", si, sub.Indices, want.Indices)
		}
		if len(sub.Vertices) != len(want.Vertices) {
			t.Fatalf("submesh %d vertices = %d, want %d", si, len(sub.Vertices), len(want.Vertices))
		}
		for vi, v := range sub.Vertices {
			w := want.Vertices[vi]
			if v.Position != w.Position || v.Normal != w.Normal || v.UV != w.UV {
				t.Errorf("submesh %d vertex %d = %+v, want %+v", si, vi, v, w)
			}
			if !v.Has.Has(w.Has | scene.AttrTangent) {
				t.Errorf("submesh %d vertex %d presence = %b", si, vi, v.Has)
			}
			for k := 0; k < 4; k++ {
				if diff := v.BlendWeights[k] - w.BlendWeights[k]; diff > 1.0/255 || diff < -1.0/255 {
					t.Errorf("weight %d = %v, want %v", k, v.BlendWeights[k], w.BlendWeights[k])
				}
				if w.BlendWeights[k] > 0 && v.BlendIndices[k] != w.BlendIndices[k] {
					t.Errorf("submesh %d vertex %d joint %d = %d, want %d", si, vi, k, v.BlendIndices[k], w.BlendIndices[k])
				}
			}
			if v.Tangent[3] != 1 || v.Tangent[0] < 0.99 {
				t.Errorf("tangent = %v", v.Tangent)
			}
		}
	}

	if got := mesh.Submeshes[1].Attributes; !reflect.DeepEqual(got, []string{"atr_a", "atr_b"}) {
		t.Errorf("attributes = %v", got)
	}

	targets := mesh.Submeshes[0].Targets
	if len(targets) != 1 || targets[0].Name != "shp_a" {
		t.Fatalf("targets = %+v", targets)
	}
	if d := targets[0].PositionDeltas[1]; d != [3]float32{0, 0, 0.25} {
		t.Errorf("delta = %v", d)
	}
	if len(mesh.Submeshes[1].Targets) != 0 {
		t.Errorf("second submesh targets = %+v", mesh.Submeshes[1].Targets)
	}
}

func TestExtract_FlatSkeleton(t *testing.T) {
	m, _ := mustBuild(t, skinnedScene(), testOptions())
	out, err := Extract(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Skeleton.Len() != 3 || out.Skeleton.Bones[0].Name != "j_kosi" {
		t.Errorf("skeleton = %+v", out.Skeleton)
	}
	// Joint 2 (j_sebo_a) becomes index 1 of the flat skeleton.
	if j := out.Meshes[0].Submeshes[1].Vertices[1].BlendIndices[0]; j != 1 {
		t.Errorf("joint = %d, want 1", j)
	}

	_, err = Extract(m, &scene.Skeleton{Bones: []scene.Bone{bone("other", -1)}})
	if !errors.Is(err, ErrUnresolvableSkeleton) {
		t.Errorf("Extract() with foreign skeleton error = %v", err)
	}
}

func TestGenerateTangents(t *testing.T) {
	v := func(x, y float32) scene.Vertex {
		return scene.Vertex{
			Has:      scene.AttrNormal | scene.AttrUV,
			Position: [3]float32{x, y, 0},
			Normal:   [3]float32{0, 0, 1},
			UV:       [4]float32{x, y, 0, 0},
		}
	}
	vs := []scene.Vertex{v(0, 0), v(1, 0), v(0, 1), v(1, 1)}
	out := generateTangents(vs, []uint32{0, 1, 2, 2, 1, 3})

	for i, o := range out {
		if o.Tangent != [4]float32{1, 0, 0, 1} {
			t.Errorf("tangent %d = %v, want {1 0 0 1}", i, o.Tangent)
		}
		if !o.Has.Has(scene.AttrTangent) {
			t.Errorf("vertex %d missing tangent bit", i)
		}
	}
	if vs[0].Has.Has(scene.AttrTangent) {
		t.Error("input vertices modified")
	}

	// Mirrored uvs flip the handedness.
	for i := range vs {
		vs[i].UV[1] = -vs[i].UV[1]
	}
	out = generateTangents(vs, []uint32{0, 1, 2, 2, 1, 3})
	if out[0].Tangent[3] != -1 {
		t.Errorf("mirrored handedness = %v, want -1", out[0].Tangent[3])
	}
}
