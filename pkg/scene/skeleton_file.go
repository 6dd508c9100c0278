package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SkeletonFile loads a skeleton from a YAML description:
//
//	bones:
//	  - name: n_root
//	    parent: -1
//	  - name: j_kosi
//	    parent: 0
//	    translation: [0, 1.0, 0]
type SkeletonFile struct {
	Path string
}

// Skeleton reads and validates the file.
func (f SkeletonFile) Skeleton() (*Skeleton, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading skeleton: %w", err)
	}
	return ParseSkeleton(data)
}

// ParseSkeleton decodes a YAML skeleton description.
func ParseSkeleton(data []byte) (*Skeleton, error) {
	var s Skeleton
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing skeleton: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.normalizePose()
	return &s, nil
}

// MarshalSkeleton encodes s in the format read by ParseSkeleton.
func MarshalSkeleton(s *Skeleton) ([]byte, error) {
	return yaml.Marshal(s)
}
