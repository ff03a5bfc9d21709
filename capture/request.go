package capture

import (
	"errors"
	"fmt"
	"image"
)

var (
	ErrInvalidRequest = errors.New("capture: invalid request")
	ErrAllocation     = errors.New("capture: canvas allocation failed")
	ErrAborted        = errors.New("capture: aborted")
)

// Request describes one screenshot. It is never modified once a pipeline
// has been started from it.
type Request struct {
	Name string
	// Output is the resolved destination path. Its extension picks the
	// encoder (.png, .tif/.tiff or .bmp).
	Output   string
	Scale    float64
	Region   image.Rectangle
	Location Location
	// FireDuringEvent allows the trigger to start the capture while the
	// host is in a scripted event.
	FireDuringEvent bool
}

func (r Request) validate() error {
	switch {
	case r.Output == "":
		return fmt.Errorf("%w: %q has no output path", ErrInvalidRequest, r.Name)
	case !(r.Scale > 0):
		return fmt.Errorf("%w: %q has scale %v", ErrInvalidRequest, r.Name, r.Scale)
	case r.Region.Empty():
		return fmt.Errorf("%w: %q has empty region %v", ErrInvalidRequest, r.Name, r.Region)
	}
	return nil
}
