package capture

import (
	"fmt"
	"image"
)

// CheckPixelTarget panics unless dst can receive a tightly packed copy of a
// surface with bounds src. A mismatch is a bug in the caller, not a
// condition to recover from.
func CheckPixelTarget(src image.Rectangle, dst *image.RGBA) {
	if dst == nil {
		panic("capture: nil pixel target")
	}
	db := dst.Bounds()
	if db.Dx() != src.Dx() || db.Dy() != src.Dy() {
		panic(fmt.Sprintf("capture: pixel target %v does not match surface %v", db, src))
	}
	if dst.Stride != 4*db.Dx() {
		panic(fmt.Sprintf("capture: pixel target stride %d, want %d", dst.Stride, 4*db.Dx()))
	}
}

// extractPixels copies src into a freshly allocated bitmap of the same size.
func extractPixels(h Host, src Surface) *image.RGBA {
	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	h.ReadPixels(src, img)
	return img
}
