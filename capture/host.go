package capture

import (
	"image"
	"time"
)

// Location names the map a frame is rendered from.
type Location string

// Surface is an offscreen render target owned by the host renderer.
type Surface interface {
	Bounds() image.Rectangle
	// SubSurface returns a view of r that shares pixels with the parent.
	// Disposing a view does not release the parent.
	SubSurface(r image.Rectangle) Surface
	Dispose()
}

// Lightmap is the host's auxiliary lighting buffer.
type Lightmap interface {
	Dispose()
}

// Host is the set of rendering primitives a capture needs. Every method is
// called from the goroutine that drives Tick, which must be the goroutine
// allowed to issue rendering commands.
type Host interface {
	// MaxSurfaceSize is the largest width or height NewSurface accepts.
	MaxSurfaceSize() int
	NewSurface(w, h int) (Surface, error)

	// Draw renders one full frame of loc at time t into dst using the
	// current viewport and lightmap.
	Draw(loc Location, t time.Time, dst Surface) error

	Viewport() image.Rectangle
	SetViewport(r image.Rectangle)

	AllocLightmap(w, h int) (Lightmap, error)
	Lightmap() Lightmap
	SetLightmap(l Lightmap)

	// SetFrameIndependentDraw toggles animation timing driven by the time
	// passed to Draw instead of the frame counter. It returns the previous
	// setting.
	SetFrameIndependentDraw(on bool) bool

	// Scale resamples src so that it fills dst.
	Scale(dst, src Surface)
	// ReadPixels copies src into dst, blocking until the pixels are on the
	// CPU. dst must have exactly the size of src (see CheckPixelTarget).
	ReadPixels(src Surface, dst *image.RGBA)
}
