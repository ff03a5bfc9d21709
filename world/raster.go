package world

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Void is drawn where the viewport leaves the map.
var Void = color.RGBA{8, 8, 12, 255}

// Rasterize draws the part of the map inside viewport into dst, placing
// world point viewport.Min at dst.Bounds().Min. phase animates water.
func (m *Map) Rasterize(dst draw.Image, viewport image.Rectangle, phase int) {
	origin := dst.Bounds().Min
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Void), image.Point{}, draw.Src)

	ts := m.TileSize
	atlas := m.Atlas()
	tx0, ty0 := floorDiv(viewport.Min.X, ts), floorDiv(viewport.Min.Y, ts)
	tx1, ty1 := floorDiv(viewport.Max.X-1, ts), floorDiv(viewport.Max.Y-1, ts)
	for ty := max(ty0, 0); ty <= min(ty1, m.Height-1); ty++ {
		for tx := max(tx0, 0); tx <= min(tx1, m.Width-1); tx++ {
			tile := image.Rect(tx*ts, ty*ts, (tx+1)*ts, (ty+1)*ts)
			r := tile.Intersect(viewport)
			if r.Empty() {
				continue
			}
			src := atlas.Tile(m.At(tx, ty), m.Variant(tx, ty, phase))
			draw.Draw(dst, r.Sub(viewport.Min).Add(origin), src, r.Min.Sub(tile.Min), draw.Src)
		}
	}
}

// LampRadius is the reach of a lamp in world pixels.
const LampRadius = 96

// LampColor is added to the ambient light at a lamp's centre.
var LampColor = color.RGBA{255, 200, 120, 255}

// Ambient returns the ambient light for an hour of the day in [0, 24).
func Ambient(hour float64) color.RGBA {
	// 1 at noon, 0 at midnight
	day := 0.5 - 0.5*math.Cos(hour/24*2*math.Pi)
	lerp := func(night, noon float64) uint8 { return uint8(night + (noon-night)*day) }
	return color.RGBA{lerp(40, 255), lerp(48, 255), lerp(90, 255), 255}
}

// FillLight writes the light reaching each world pixel of viewport into
// light, starting at light.Bounds().Min. Lamps add to the ambient level.
func (m *Map) FillLight(light *image.RGBA, viewport image.Rectangle, ambient color.RGBA) {
	lb := light.Bounds()
	area := image.Rect(lb.Min.X, lb.Min.Y, lb.Min.X+viewport.Dx(), lb.Min.Y+viewport.Dy()).Intersect(lb)
	draw.Draw(light, area, image.NewUniform(ambient), image.Point{}, draw.Src)

	// world pixels that have a light pixel
	lit := area.Sub(area.Min).Add(viewport.Min)
	reach := lit.Inset(-LampRadius)
	for _, p := range m.Lamps {
		if !p.In(reach) {
			continue
		}
		box := image.Rect(p.X-LampRadius, p.Y-LampRadius, p.X+LampRadius, p.Y+LampRadius).Intersect(lit)
		for wy := box.Min.Y; wy < box.Max.Y; wy++ {
			for wx := box.Min.X; wx < box.Max.X; wx++ {
				dx, dy := float64(wx-p.X), float64(wy-p.Y)
				f := 1 - math.Sqrt(dx*dx+dy*dy)/LampRadius
				if f <= 0 {
					continue
				}
				f *= f
				lx, ly := area.Min.X+wx-viewport.Min.X, area.Min.Y+wy-viewport.Min.Y
				i := light.PixOffset(lx, ly)
				light.Pix[i+0] = clamp8(int(light.Pix[i+0]) + int(float64(LampColor.R)*f))
				light.Pix[i+1] = clamp8(int(light.Pix[i+1]) + int(float64(LampColor.G)*f))
				light.Pix[i+2] = clamp8(int(light.Pix[i+2]) + int(float64(LampColor.B)*f))
			}
		}
	}
}

// Multiply darkens dst by light, pixel by pixel, starting at the top-left
// corner of both images.
func Multiply(dst, light *image.RGBA) {
	db, lb := dst.Bounds(), light.Bounds()
	w, h := min(db.Dx(), lb.Dx()), min(db.Dy(), lb.Dy())
	for y := 0; y < h; y++ {
		di := dst.PixOffset(db.Min.X, db.Min.Y+y)
		li := light.PixOffset(lb.Min.X, lb.Min.Y+y)
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				dst.Pix[di+c] = uint8(uint16(dst.Pix[di+c]) * uint16(light.Pix[li+c]) / 255)
			}
			di += 4
			li += 4
		}
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
