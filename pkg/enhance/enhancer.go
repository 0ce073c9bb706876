// Package enhance restricts a normalized slice to its mask and improves the
// visibility of the masked region.
//
// Enhancement runs as a fixed sequence of named stages:
//
//  1. binarize      mask nonzero -> 1, slice zeroed outside the mask
//  2. fallback      stop here if nothing inside the mask carries intensity
//  3. clahe         tile-based contrast-limited histogram equalization
//  4. remask        zero the pixels equalization assigned outside the mask
//  5. gamma         power-law brightening on [0, 1] intensities
//  6. final-remask  zero outside the mask once more
//
// Each stage declares whether it requires and whether it ensures that the
// plane's nonzero support lies within the mask. The Trace of a Result
// records how many pixels each stage zeroed, which shows when a masking
// pass stops doing any work.
package enhance

import (
	"errors"
	"fmt"
	"time"

	"prostateview/internal/models"
)

// ErrStageContract is returned when stage verification is enabled and a
// stage breaks its declared support condition
var ErrStageContract = errors.New("stage contract violated")

// Status distinguishes an enhanced region from the "no signal" fallback
type Status int

const (
	// StatusEnhanced means the full stage sequence ran
	StatusEnhanced Status = iota

	// StatusEmptyRegion means the masked slice had no nonzero pixel and was
	// returned unchanged (all zero)
	StatusEmptyRegion
)

func (s Status) String() string {
	switch s {
	case StatusEnhanced:
		return "enhanced"
	case StatusEmptyRegion:
		return "empty-region"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Stage names
const (
	StageBinarize    = "binarize"
	StageFallback    = "fallback"
	StageCLAHE       = "clahe"
	StageRemask      = "remask"
	StageGamma       = "gamma"
	StageFinalRemask = "final-remask"
)

// StageTrace reports what one stage did
type StageTrace struct {
	Name string

	// Zeroed counts pixels that were nonzero before the stage and zero after it
	Zeroed int

	// OutsideMask counts nonzero pixels outside the mask after the stage
	OutsideMask int

	Duration time.Duration

	// Output is the plane produced by the stage
	Output *models.Plane
}

// Result is the outcome of Enhance
type Result struct {
	// Region has the input's shape; pixels outside the mask are zero
	Region *models.Plane

	Status Status

	Trace []StageTrace
}

// Stage returns the trace entry of the named stage, if it ran
func (r *Result) Stage(name string) (StageTrace, bool) {
	for _, st := range r.Trace {
		if st.Name == name {
			return st, true
		}
	}
	return StageTrace{}, false
}

// run carries the working planes through the stages
type run struct {
	slice   *models.Plane
	rawMask *models.Plane
	mask    *models.Plane // binary 0/1
	current *models.Plane
	status  Status
}

type stage struct {
	name string

	// requiresSupport: the input support must lie within the mask
	requiresSupport bool

	// ensuresSupport: the output support lies within the mask
	ensuresSupport bool

	// apply returns done=true to end the sequence early
	apply func(e *Enhancer, r *run) (done bool, err error)
}

// Option customizes an Enhancer
type Option func(*Enhancer)

// WithEqualizer replaces the default pure Go equalizer
func WithEqualizer(eq Equalizer) Option {
	return func(e *Enhancer) {
		e.equalizer = eq
	}
}

// WithStageVerification makes Enhance fail with ErrStageContract when a
// stage breaks its declared support condition
func WithStageVerification() Option {
	return func(e *Enhancer) {
		e.verify = true
	}
}

// Enhancer applies the masked enhancement stages. It is immutable after
// construction and safe for concurrent use.
type Enhancer struct {
	policy    Policy
	equalizer Equalizer
	gammaLUT  [histSize]uint8
	verify    bool
	stages    []stage
}

// New creates an Enhancer for policy
func New(policy Policy, opts ...Option) (*Enhancer, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid enhancement policy: %w", err)
	}

	e := &Enhancer{
		policy:   policy,
		gammaLUT: GammaLUT(policy.Gamma),
		stages:   defaultStages(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.equalizer == nil {
		eq, err := NewNativeCLAHE(policy)
		if err != nil {
			return nil, err
		}
		e.equalizer = eq
	}

	return e, nil
}

// Policy returns the policy the enhancer was built with
func (e *Enhancer) Policy() Policy {
	return e.policy
}

// Stages lists the stage names in execution order
func (e *Enhancer) Stages() []string {
	names := make([]string, len(e.stages))
	for i, st := range e.stages {
		names[i] = st.name
	}
	return names
}

// Enhance produces the enhanced region for slice restricted to mask. Any
// nonzero mask sample counts as inside. Both planes must share their shape.
func (e *Enhancer) Enhance(slice, mask *models.Plane) (*Result, error) {
	if slice == nil || mask == nil {
		return nil, fmt.Errorf("slice and mask are required")
	}
	if err := models.CheckPlanes("enhance", slice, mask); err != nil {
		return nil, err
	}

	r := &run{
		slice:   slice,
		rawMask: mask,
		status:  StatusEnhanced,
	}
	result := &Result{Trace: make([]StageTrace, 0, len(e.stages))}

	for _, st := range e.stages {
		if e.verify && st.requiresSupport && r.current != nil {
			if n := countOutside(r.current, r.mask); n > 0 {
				return nil, fmt.Errorf("%w: %d pixels outside mask before %s", ErrStageContract, n, st.name)
			}
		}

		before := r.current
		start := time.Now()
		done, err := st.apply(e, r)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", st.name, err)
		}

		trace := StageTrace{
			Name:        st.name,
			Duration:    time.Since(start),
			Output:      r.current,
			OutsideMask: countOutside(r.current, r.mask),
		}
		if before != nil {
			trace.Zeroed = countZeroed(before, r.current)
		} else {
			trace.Zeroed = countZeroed(slice, r.current)
		}
		result.Trace = append(result.Trace, trace)

		if e.verify && st.ensuresSupport && trace.OutsideMask > 0 {
			return nil, fmt.Errorf("%w: %d pixels outside mask after %s", ErrStageContract, trace.OutsideMask, st.name)
		}

		if done {
			break
		}
	}

	result.Region = r.current
	result.Status = r.status
	return result, nil
}

func defaultStages() []stage {
	return []stage{
		{
			name:           StageBinarize,
			ensuresSupport: true,
			apply: func(e *Enhancer, r *run) (bool, error) {
				r.mask = Binarize(r.rawMask)
				r.current = ApplyMask(r.slice, r.mask)
				return false, nil
			},
		},
		{
			name:            StageFallback,
			requiresSupport: true,
			ensuresSupport:  true,
			apply: func(e *Enhancer, r *run) (bool, error) {
				if r.current.IsZero() {
					r.status = StatusEmptyRegion
					return true, nil
				}
				return false, nil
			},
		},
		{
			name:            StageCLAHE,
			requiresSupport: true,
			apply: func(e *Enhancer, r *run) (bool, error) {
				out, err := e.equalizer.Equalize(r.current)
				if err != nil {
					return false, err
				}
				if !out.SameShape(r.current) {
					return false, models.NewShapeMismatch("equalizer output", r.current.Shape(), out.Shape())
				}
				r.current = out
				return false, nil
			},
		},
		{
			name:           StageRemask,
			ensuresSupport: true,
			apply: func(e *Enhancer, r *run) (bool, error) {
				r.current = ApplyMask(r.current, r.mask)
				return false, nil
			},
		},
		{
			name:            StageGamma,
			requiresSupport: true,
			ensuresSupport:  true,
			apply: func(e *Enhancer, r *run) (bool, error) {
				r.current = applyLUT(r.current, &e.gammaLUT)
				return false, nil
			},
		},
		{
			name:           StageFinalRemask,
			ensuresSupport: true,
			apply: func(e *Enhancer, r *run) (bool, error) {
				r.current = ApplyMask(r.current, r.mask)
				return false, nil
			},
		},
	}
}
