package models

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned whenever co-registered arrays (image and mask
// volumes, or the planes derived from them) do not share the same extent.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeMismatchError describes which arrays disagreed
type ShapeMismatchError struct {
	// Context names the operation that detected the mismatch
	Context string
	Want    Shape
	Got     Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: %v: want %s, got %s", e.Context, ErrShapeMismatch, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrShapeMismatch) succeed
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// NewShapeMismatch builds a ShapeMismatchError
func NewShapeMismatch(context string, want, got Shape) error {
	return &ShapeMismatchError{Context: context, Want: want, Got: got}
}

// CheckPlanes returns a ShapeMismatchError if any plane differs in shape from the first
func CheckPlanes(context string, planes ...*Plane) error {
	if len(planes) == 0 {
		return nil
	}
	first := planes[0]
	for _, p := range planes[1:] {
		if !first.SameShape(p) {
			return NewShapeMismatch(context, first.Shape(), p.Shape())
		}
	}
	return nil
}
