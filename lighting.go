package main

import (
	"image"
	"image/color"
	"math"
	"time"

	"worldshot/world"

	"github.com/hajimehoshi/ebiten/v2"
)

// clockStart anchors the game clock. The day starts at hour 6.
var clockStart = time.Now()

const startHour = 6

// gameHour returns the hour of the in-game day at now.
func gameHour(now time.Time) float64 {
	day := gs.DayLength
	if day <= 0 {
		day = gsdef.DayLength
	}
	elapsed := now.Sub(clockStart).Seconds()
	h := math.Mod(startHour+elapsed/day*24, 24)
	if h < 0 {
		h += 24
	}
	return h
}

// captureHour is the hour screenshots are lit with.
func captureHour(now time.Time) float64 {
	if gs.CaptureHour >= 0 {
		return math.Mod(gs.CaptureHour, 24)
	}
	return gameHour(now)
}

// multiplyBlend darkens the destination by the source colour.
var multiplyBlend = ebiten.Blend{
	BlendFactorSourceRGB:        ebiten.BlendFactorDestinationColor,
	BlendFactorSourceAlpha:      ebiten.BlendFactorZero,
	BlendFactorDestinationRGB:   ebiten.BlendFactorZero,
	BlendFactorDestinationAlpha: ebiten.BlendFactorOne,
	BlendOperationRGB:           ebiten.BlendOperationAdd,
	BlendOperationAlpha:         ebiten.BlendOperationAdd,
}

var lampImg *ebiten.Image

// lampSprite returns the additive light of one lamp, LampRadius*2 wide.
func lampSprite() *ebiten.Image {
	if lampImg != nil {
		return lampImg
	}
	r := world.LampRadius
	img := image.NewRGBA(image.Rect(0, 0, 2*r, 2*r))
	for y := 0; y < 2*r; y++ {
		for x := 0; x < 2*r; x++ {
			dx, dy := float64(x-r)+0.5, float64(y-r)+0.5
			f := 1 - math.Sqrt(dx*dx+dy*dy)/float64(r)
			if f <= 0 {
				continue
			}
			f *= f
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(float64(world.LampColor.R) * f)
			img.Pix[i+1] = uint8(float64(world.LampColor.G) * f)
			img.Pix[i+2] = uint8(float64(world.LampColor.B) * f)
			img.Pix[i+3] = uint8(255 * f)
		}
	}
	lampImg = newImageFromImage(img)
	return lampImg
}

// drawLighting fills light with the ambient level plus every lamp near
// viewport and multiplies dst by it. light must be at least as large as dst.
func drawLighting(dst, light *ebiten.Image, m *world.Map, viewport image.Rectangle, ambient color.RGBA) {
	db := dst.Bounds()
	lb := light.Bounds()
	area := image.Rect(lb.Min.X, lb.Min.Y, lb.Min.X+db.Dx(), lb.Min.Y+db.Dy())
	lm := light.SubImage(area).(*ebiten.Image)
	lm.Fill(ambient)

	sprite := lampSprite()
	reach := viewport.Inset(-world.LampRadius)
	op := &ebiten.DrawImageOptions{Blend: ebiten.BlendLighter}
	for _, p := range m.Lamps {
		if !p.In(reach) {
			continue
		}
		op.GeoM.Reset()
		op.GeoM.Translate(
			float64(p.X-world.LampRadius-viewport.Min.X+area.Min.X),
			float64(p.Y-world.LampRadius-viewport.Min.Y+area.Min.Y))
		lm.DrawImage(sprite, op)
	}

	mop := &ebiten.DrawImageOptions{Blend: multiplyBlend}
	mop.GeoM.Translate(float64(db.Min.X), float64(db.Min.Y))
	dst.DrawImage(lm, mop)
}
