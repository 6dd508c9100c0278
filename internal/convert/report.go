package convert

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ViolationKind classifies a non-fatal structural problem.
type ViolationKind int

// Non-fatal violations. The output is still produced unless strict.
const (
	TooManyBones ViolationKind = iota
	TooManyVertices
	ShapeIndexOverflow
	MissingMaterial
	StreamKeyMismatch
	TooManyAttributes
)

func (k ViolationKind) String() string {
	switch k {
	case TooManyBones:
		return "too many bones"
	case TooManyVertices:
		return "too many vertices"
	case ShapeIndexOverflow:
		return "shape index overflow"
	case MissingMaterial:
		return "missing material"
	case StreamKeyMismatch:
		return "stream key mismatch"
	case TooManyAttributes:
		return "too many attributes"
	default:
		return fmt.Sprintf("violation(%d)", int(k))
	}
}

// Violation is one reported problem. Mesh and Submesh are -1 when the
// problem is not tied to one.
type Violation struct {
	Kind    ViolationKind
	Mesh    int
	Submesh int
	Detail  string
}

func (v Violation) Error() string {
	switch {
	case v.Mesh < 0:
		return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	case v.Submesh < 0:
		return fmt.Sprintf("mesh %d: %s: %s", v.Mesh, v.Kind, v.Detail)
	default:
		return fmt.Sprintf("mesh %d submesh %d: %s: %s", v.Mesh, v.Submesh, v.Kind, v.Detail)
	}
}

// Report collects the violations of one conversion.
type Report struct {
	Violations []Violation
	log        *zap.Logger
}

func newReport(log *zap.Logger) *Report {
	return &Report{log: log}
}

func (r *Report) add(v Violation) {
	r.Violations = append(r.Violations, v)
	r.log.Warn("conversion violation",
		zap.Stringer("kind", v.Kind),
		zap.Int("mesh", v.Mesh),
		zap.Int("submesh", v.Submesh),
		zap.String("detail", v.Detail),
	)
}

func (r *Report) addf(kind ViolationKind, mesh, submesh int, format string, args ...any) {
	r.add(Violation{Kind: kind, Mesh: mesh, Submesh: submesh, Detail: fmt.Sprintf(format, args...)})
}

// Len returns the number of violations.
func (r *Report) Len() int {
	return len(r.Violations)
}

// Has reports whether a violation of kind was recorded.
func (r *Report) Has(kind ViolationKind) bool {
	for _, v := range r.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Err combines every violation into one error, or nil.
func (r *Report) Err() error {
	var err error
	for _, v := range r.Violations {
		err = multierr.Append(err, v)
	}
	return err
}
