package convert

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// Fatal conversion errors.
var (
	ErrSkeletonRequired     = errors.New("skeleton required for skinned mesh")
	ErrUnresolvableSkeleton = errors.New("unresolvable skeleton reference")
	ErrIndexOutOfRange      = errors.New("index references missing vertex")
	ErrViolations           = errors.New("structural violations in strict mode")
)

var byteOrder = binary.LittleEndian

// Build converts sc into a model. Non-fatal violations are logged and
// collected in the report; with Options.Strict they also fail the build.
func Build(sc *scene.Scene, opts Options) (*mdl.Model, *Report, error) {
	opts.normalize()
	report := newReport(opts.Logger)

	skel, err := buildSkeleton(sc, opts)
	if err != nil {
		return nil, report, err
	}

	attrs := collectAttributes(sc)
	if len(attrs) > 32 {
		report.addf(TooManyAttributes, -1, -1, "%d attributes, only the first 32 fit the submesh mask", len(attrs))
	}
	attrIndex := make(map[string]int, len(attrs))
	for i, a := range attrs {
		attrIndex[a] = i
	}

	b := &builder{opts: opts, report: report, skeleton: skel, attrs: attrIndex}
	meshes := make([]*builtMesh, 0, len(sc.Meshes))
	for mi := range sc.Meshes {
		bm, err := b.assembleMesh(mi, &sc.Meshes[mi])
		if err != nil {
			return nil, report, err
		}
		opts.Logger.Debug("mesh assembled",
			zap.Int("mesh", mi),
			zap.String("name", bm.name),
			zap.Stringer("layout", bm.layout),
			zap.Int("vertices", bm.vertexCount),
			zap.Int("indices", len(bm.indices)),
			zap.Int("bones", bm.bones.Len()),
		)
		meshes = append(meshes, bm)
	}

	model := newPlanner(opts, report, meshes, attrs).plan()

	if opts.Strict && report.Len() > 0 {
		return nil, report, fmt.Errorf("%w: %w", ErrViolations, report.Err())
	}
	opts.Logger.Info("model built",
		zap.Int("meshes", len(model.Meshes)),
		zap.Int("submeshes", len(model.Submeshes)),
		zap.Int("bones", len(model.BoneNameOffsets)),
		zap.Int("shapes", len(model.Shapes)),
		zap.Uint32("size", model.FileSize()),
		zap.Int("violations", report.Len()),
	)
	return model, report, nil
}

// buildSkeleton resolves the skeleton of the conversion. A skinned scene
// without one is fatal.
func buildSkeleton(sc *scene.Scene, opts Options) (*scene.Skeleton, error) {
	var skel *scene.Skeleton
	if opts.Skeleton != nil {
		s, err := opts.Skeleton.Skeleton()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnresolvableSkeleton, err)
		}
		skel = s
	} else if sc.Skeleton != nil {
		skel = sc.Skeleton
	}

	if skel.Len() == 0 {
		if sc.Skinned() {
			return nil, ErrSkeletonRequired
		}
		return nil, nil
	}
	if err := skel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolvableSkeleton, err)
	}
	return skel, nil
}

// collectAttributes returns the model-wide attribute names in first-seen
// order.
func collectAttributes(sc *scene.Scene) []string {
	var attrs []string
	seen := make(map[string]bool)
	for mi := range sc.Meshes {
		for si := range sc.Meshes[mi].Submeshes {
			for _, a := range sc.Meshes[mi].Submeshes[si].Attributes {
				if !seen[a] {
					seen[a] = true
					attrs = append(attrs, a)
				}
			}
		}
	}
	return attrs
}
