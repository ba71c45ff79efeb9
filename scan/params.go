package scan

import (
	"errors"
	"fmt"

	"github.com/mwaldt/stagescan/grid"
)

// ErrInvalidParams is wrapped by every parameter rejection.
var ErrInvalidParams = errors.New("invalid parameters")

// Params configure one raster run.
type Params struct {
	// Extension is the half-width of the square scan area, in steps.
	Extension int `json:"extension"`

	// Center is the middle of the scan area in absolute coordinates.
	Center grid.Position `json:"center"`

	// StepSize is the spacing between sampled points, in steps.
	StepSize int `json:"stepSize"`

	// DelayMillis is the firmware settle time before each sample.
	DelayMillis int `json:"delayMillis"`

	// Speed is the motor speed in firmware units.
	Speed int `json:"speed"`
}

// Validate rejects values the firmware or the raster math cannot take.
func (p Params) Validate() error {
	if p.Extension < 0 {
		return fmt.Errorf("%w: extension %d", ErrInvalidParams, p.Extension)
	}
	if p.StepSize < 1 {
		return fmt.Errorf("%w: stepsize %d", ErrInvalidParams, p.StepSize)
	}
	if p.DelayMillis < 0 {
		return fmt.Errorf("%w: delay %dms", ErrInvalidParams, p.DelayMillis)
	}
	if p.Speed < 1 {
		return fmt.Errorf("%w: speed %d", ErrInvalidParams, p.Speed)
	}
	return nil
}

// points returns the number of sampled points per axis.
func (p Params) points() int {
	return 2*p.Extension/p.StepSize + 1
}
