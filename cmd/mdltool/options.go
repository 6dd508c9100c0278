package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xivdev/Xande-sub000/internal/config"
	"github.com/xivdev/Xande-sub000/internal/convert"
	"github.com/xivdev/Xande-sub000/pkg/mdl"
	"github.com/xivdev/Xande-sub000/pkg/scene"
)

// buildOptions maps the loaded config onto conversion options, reading the
// template model when one is configured.
func buildOptions(cfg *config.Config, log *zap.Logger) (convert.Options, error) {
	opts := convert.DefaultOptions()
	opts.Logger = log
	opts.Strict = cfg.Conversion.Strict
	opts.Workers = cfg.Conversion.Workers
	opts.MaxVertices = cfg.Conversion.MaxVerticesPerMesh
	opts.GenerateTangents = cfg.Conversion.GenerateTangents
	if cfg.Conversion.DefaultMaterial != "" {
		opts.DefaultMaterial = cfg.Conversion.DefaultMaterial
	}
	if cfg.Conversion.Version != 0 {
		opts.Version = cfg.Conversion.Version
	}
	if cfg.Skeleton.RootBone != "" {
		opts.RootBone = cfg.Skeleton.RootBone
	}
	if cfg.Skeleton.AuxiliaryRootBone != "" {
		opts.AuxiliaryRootBone = cfg.Skeleton.AuxiliaryRootBone
	}
	if cfg.Skeleton.Path != "" {
		opts.Skeleton = scene.SkeletonFile{Path: cfg.Skeleton.Path}
	}

	opts.Merge = convert.MergePolicy{
		BoundingBoxes: cfg.Template.KeepBoundingBoxes,
		ElementIDs:    cfg.Template.KeepElementIDs,
		ClipDistances: cfg.Template.KeepClipDistances,
		LodRanges:     cfg.Template.KeepLodRanges,
		Flags:         cfg.Template.KeepFlags,
		Version:       cfg.Template.KeepVersion,
	}
	if cfg.Template.Path != "" {
		tmpl, err := mdl.ParseFile(cfg.Template.Path)
		if err != nil {
			return opts, fmt.Errorf("template %s: %w", cfg.Template.Path, err)
		}
		opts.Template = tmpl
	}
	return opts, nil
}

// extractSkeleton returns the configured skeleton, or nil when the model's
// own bone names should form a flat skeleton.
func extractSkeleton(cfg *config.Config) (*scene.Skeleton, error) {
	if cfg.Skeleton.Path == "" {
		return nil, nil
	}
	skel, err := scene.SkeletonFile{Path: cfg.Skeleton.Path}.Skeleton()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", convert.ErrUnresolvableSkeleton, err)
	}
	return skel, nil
}
