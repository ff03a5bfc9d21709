package capture

import (
	"image"
	"math"
)

// Annotation limits a capture to a sub-rectangle of the map, in tiles.
// Left and Top are inclusive, Right and Bottom exclusive.
type Annotation struct {
	Left, Top, Right, Bottom int
}

// MapBounds returns the world-pixel rectangle to capture for a map of
// widthTiles x heightTiles. A nil or empty annotation selects the whole map;
// otherwise the annotation is clamped to the map.
func MapBounds(widthTiles, heightTiles, tileSize int, ann *Annotation) image.Rectangle {
	full := image.Rect(0, 0, widthTiles, heightTiles)
	r := full
	if ann != nil {
		sub := image.Rect(ann.Left, ann.Top, ann.Right, ann.Bottom).Intersect(full)
		if !sub.Empty() {
			r = sub
		}
	}
	return image.Rect(r.Min.X*tileSize, r.Min.Y*tileSize, r.Max.X*tileSize, r.Max.Y*tileSize)
}

// ScaledSize is the output size of r at scale s, never smaller than 1x1.
func ScaledSize(r image.Rectangle, s float64) (w, h int) {
	w = int(math.Ceil(float64(r.Dx()) * s))
	h = int(math.Ceil(float64(r.Dy()) * s))
	return max(w, 1), max(h, 1)
}
