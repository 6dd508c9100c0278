// Package config handles mdltool configuration loading and management.
package config

import "runtime"

// Config holds all converter settings.
type Config struct {
	Conversion ConversionConfig `yaml:"conversion" toml:"conversion"`
	Skeleton   SkeletonConfig   `yaml:"skeleton" toml:"skeleton"`
	Template   TemplateConfig   `yaml:"template" toml:"template"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ConversionConfig holds model build settings.
type ConversionConfig struct {
	Strict             bool   `yaml:"strict" toml:"strict"`
	Workers            int    `yaml:"workers" toml:"workers"`
	MaxVerticesPerMesh int    `yaml:"max_vertices_per_mesh" toml:"max_vertices_per_mesh"`
	DefaultMaterial    string `yaml:"default_material" toml:"default_material"`
	GenerateTangents   bool   `yaml:"generate_tangents" toml:"generate_tangents"`
	Version            uint32 `yaml:"version" toml:"version"`
}

// SkeletonConfig selects the skeleton used to order bone tables.
type SkeletonConfig struct {
	Path              string `yaml:"path" toml:"path"` // YAML skeleton; empty uses the scene skin
	RootBone          string `yaml:"root_bone" toml:"root_bone"`
	AuxiliaryRootBone string `yaml:"auxiliary_root_bone" toml:"auxiliary_root_bone"`
}

// TemplateConfig names an existing model whose fields are carried over.
type TemplateConfig struct {
	Path              string `yaml:"path" toml:"path"`
	KeepBoundingBoxes bool   `yaml:"keep_bounding_boxes" toml:"keep_bounding_boxes"`
	KeepElementIDs    bool   `yaml:"keep_element_ids" toml:"keep_element_ids"`
	KeepClipDistances bool   `yaml:"keep_clip_distances" toml:"keep_clip_distances"`
	KeepLodRanges     bool   `yaml:"keep_lod_ranges" toml:"keep_lod_ranges"`
	KeepFlags         bool   `yaml:"keep_flags" toml:"keep_flags"`
	KeepVersion       bool   `yaml:"keep_version" toml:"keep_version"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Conversion: ConversionConfig{
			Strict:             false,
			Workers:            runtime.NumCPU(),
			MaxVerticesPerMesh: 65535,
			DefaultMaterial:    "/mt_default.mtrl",
			GenerateTangents:   true,
			Version:            0x01000005,
		},
		Skeleton: SkeletonConfig{
			RootBone:          "n_root",
			AuxiliaryRootBone: "n_hara",
		},
		Template: TemplateConfig{
			KeepBoundingBoxes: true,
			KeepElementIDs:    true,
			KeepClipDistances: true,
			KeepLodRanges:     true,
			KeepFlags:         true,
			KeepVersion:       true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
