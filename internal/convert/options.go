// Package convert builds packed-binary models from scenes and extracts
// scenes back out of parsed models.
package convert

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// Reserved bone names.
const (
	DefaultRootBone          = "n_root"
	DefaultAuxiliaryRootBone = "n_hara"
)

// MaxVerticesPerMesh is the 16-bit index limit of one mesh.
const MaxVerticesPerMesh = 65535

// MergePolicy selects which fields are taken from a template model instead
// of being computed. It is resolved once, during layout planning.
type MergePolicy struct {
	BoundingBoxes bool
	ElementIDs    bool
	ClipDistances bool
	LodRanges     bool
	Flags         bool
	Version       bool
}

// KeepAll returns a policy taking every supported field from the template.
func KeepAll() MergePolicy {
	return MergePolicy{
		BoundingBoxes: true,
		ElementIDs:    true,
		ClipDistances: true,
		LodRanges:     true,
		Flags:         true,
		Version:       true,
	}
}

// Options controls a conversion.
type Options struct {
	Logger *zap.Logger

	// Strict turns reported violations into a returned error.
	Strict bool
	// Workers bounds concurrent submesh encoding.
	Workers int
	// MaxVertices is the per-mesh vertex limit, at most MaxVerticesPerMesh.
	MaxVertices int
	// DefaultMaterial replaces an empty material name.
	DefaultMaterial string
	// GenerateTangents fills tangents on meshes with normals and uvs.
	GenerateTangents bool
	// Version is the file version when no template overrides it.
	Version uint32

	RootBone          string
	AuxiliaryRootBone string

	// Skeleton overrides the scene skeleton when set.
	Skeleton scene.SkeletonProvider

	Template *mdl.Model
	Merge    MergePolicy
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Logger:            zap.NewNop(),
		Workers:           runtime.NumCPU(),
		MaxVertices:       MaxVerticesPerMesh,
		DefaultMaterial:   "/mt_default.mtrl",
		GenerateTangents:  true,
		Version:           mdl.DefaultVersion,
		RootBone:          DefaultRootBone,
		AuxiliaryRootBone: DefaultAuxiliaryRootBone,
		Merge:             KeepAll(),
	}
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.MaxVertices <= 0 || o.MaxVertices > MaxVerticesPerMesh {
		o.MaxVertices = MaxVerticesPerMesh
	}
	if o.Version == 0 {
		o.Version = mdl.DefaultVersion
	}
}
