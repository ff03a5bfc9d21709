package main

import (
	"image"
	"image/color"

	"worldshot/world"

	"github.com/hajimehoshi/ebiten/v2"
)

// tileSet holds the GPU copies of a map's atlas.
type tileSet struct {
	tiles [][world.Variants]*ebiten.Image
}

var tileSets = map[*world.Map]*tileSet{}

func tilesFor(m *world.Map) *tileSet {
	if ts, ok := tileSets[m]; ok {
		return ts
	}
	atlas := m.Atlas()
	ts := &tileSet{}
	for k := world.Water; k <= world.Rock; k++ {
		var row [world.Variants]*ebiten.Image
		for v := 0; v < world.Variants; v++ {
			row[v] = newImageFromImage(atlas.Tile(k, v))
		}
		ts.tiles = append(ts.tiles, row)
	}
	tileSets[m] = ts
	return ts
}

// drawWorld draws the part of m inside viewport so that viewport.Min lands on
// dst.Bounds().Min.
func drawWorld(dst *ebiten.Image, m *world.Map, viewport image.Rectangle, phase int) {
	dst.Fill(world.Void)
	origin := dst.Bounds().Min
	ts := m.TileSize
	set := tilesFor(m)

	tx0, ty0 := floorDiv(viewport.Min.X, ts), floorDiv(viewport.Min.Y, ts)
	tx1, ty1 := floorDiv(viewport.Max.X-1, ts), floorDiv(viewport.Max.Y-1, ts)
	op := &ebiten.DrawImageOptions{Filter: ebiten.FilterNearest, DisableMipmaps: true}
	for ty := max(ty0, 0); ty <= min(ty1, m.Height-1); ty++ {
		for tx := max(tx0, 0); tx <= min(tx1, m.Width-1); tx++ {
			img := set.tiles[m.At(tx, ty)][m.Variant(tx, ty, phase)]
			op.GeoM.Reset()
			op.GeoM.Translate(
				float64(tx*ts-viewport.Min.X+origin.X),
				float64(ty*ts-viewport.Min.Y+origin.Y))
			dst.DrawImage(img, op)
		}
	}
}

// drawScene draws the world and, when light is given, its lighting.
func drawScene(dst, light *ebiten.Image, m *world.Map, viewport image.Rectangle, phase int, hour float64) {
	drawWorld(dst, m, viewport, phase)
	if light != nil {
		drawLighting(dst, light, m, viewport, world.Ambient(hour))
	}
}

// flashColor is the overlay drawn right after a screenshot was saved.
func flashColor(a float64) color.Color {
	if a < 0 {
		a = 0
	} else if a > 1 {
		a = 1
	}
	v := uint8(255 * a)
	return color.RGBA{v, v, v, v}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
