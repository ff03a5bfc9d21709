package main

import (
	"fmt"
	"image"
	"time"

	"worldshot/capture"
	"worldshot/world"

	"github.com/hajimehoshi/ebiten/v2"
)

// worlds maps capture locations to loaded maps.
var worlds = map[capture.Location]*world.Map{}

func registerWorld(m *world.Map) capture.Location {
	loc := capture.Location(m.Name)
	worlds[loc] = m
	return loc
}

// ebitenHost lets the capture pipeline render through the game's own world
// drawing code. All methods must be called from the game loop.
type ebitenHost struct {
	maxSize          int
	viewport         image.Rectangle
	light            *ebitenLightmap
	frameIndependent bool
	frame            int
}

func newEbitenHost(maxSize int) *ebitenHost {
	return &ebitenHost{maxSize: maxSize}
}

func (h *ebitenHost) MaxSurfaceSize() int { return h.maxSize }

func (h *ebitenHost) NewSurface(w, ht int) (s capture.Surface, err error) {
	if w <= 0 || ht <= 0 || w > h.maxSize || ht > h.maxSize {
		return nil, fmt.Errorf("surface %dx%d outside 1..%d", w, ht, h.maxSize)
	}
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("surface %dx%d: %v", w, ht, r)
		}
	}()
	return &ebitenSurface{img: newImage(w, ht), owner: true}, nil
}

// phase returns the water animation step for a draw at t.
func (h *ebitenHost) phase(t time.Time) int {
	if h.frameIndependent {
		return int(t.UnixMilli()/500) % world.Variants
	}
	return h.frame / 30 % world.Variants
}

func (h *ebitenHost) Draw(loc capture.Location, t time.Time, dst capture.Surface) error {
	m := worlds[loc]
	if m == nil {
		return fmt.Errorf("unknown location %q", loc)
	}
	d := ebitenImageOf(dst)
	var light *ebiten.Image
	if h.light != nil {
		light = h.light.img
	}
	drawScene(d, light, m, h.viewport, h.phase(t), captureHour(t))
	return nil
}

func (h *ebitenHost) Viewport() image.Rectangle     { return h.viewport }
func (h *ebitenHost) SetViewport(r image.Rectangle) { h.viewport = r }

func (h *ebitenHost) AllocLightmap(w, ht int) (l capture.Lightmap, err error) {
	defer func() {
		if r := recover(); r != nil {
			l, err = nil, fmt.Errorf("lightmap %dx%d: %v", w, ht, r)
		}
	}()
	return &ebitenLightmap{img: newImage(w, ht)}, nil
}

func (h *ebitenHost) Lightmap() capture.Lightmap {
	if h.light == nil {
		return nil
	}
	return h.light
}

func (h *ebitenHost) SetLightmap(l capture.Lightmap) {
	if l == nil {
		h.light = nil
		return
	}
	h.light = l.(*ebitenLightmap)
}

func (h *ebitenHost) SetFrameIndependentDraw(on bool) bool {
	old := h.frameIndependent
	h.frameIndependent = on
	return old
}

func (h *ebitenHost) Scale(dst, src capture.Surface) {
	d, s := ebitenImageOf(dst), ebitenImageOf(src)
	db, sb := d.Bounds(), s.Bounds()
	op := &ebiten.DrawImageOptions{Filter: ebiten.FilterNearest, Blend: ebiten.BlendCopy, DisableMipmaps: true}
	op.GeoM.Scale(float64(db.Dx())/float64(sb.Dx()), float64(db.Dy())/float64(sb.Dy()))
	op.GeoM.Translate(float64(db.Min.X), float64(db.Min.Y))
	d.DrawImage(s, op)
}

func (h *ebitenHost) ReadPixels(src capture.Surface, dst *image.RGBA) {
	capture.CheckPixelTarget(src.Bounds(), dst)
	ebitenImageOf(src).ReadPixels(dst.Pix)
}

// ebitenSurface is an offscreen image or a view into one.
type ebitenSurface struct {
	img      *ebiten.Image
	owner    bool
	disposed bool
}

func ebitenImageOf(s capture.Surface) *ebiten.Image {
	es, ok := s.(*ebitenSurface)
	if !ok {
		panic(fmt.Sprintf("foreign surface %T", s))
	}
	if es.disposed {
		panic("surface used after dispose")
	}
	return es.img
}

func (s *ebitenSurface) Bounds() image.Rectangle { return s.img.Bounds() }

func (s *ebitenSurface) SubSurface(r image.Rectangle) capture.Surface {
	r = r.Add(s.img.Bounds().Min)
	return &ebitenSurface{img: s.img.SubImage(r).(*ebiten.Image)}
}

func (s *ebitenSurface) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	if s.owner {
		s.img.Deallocate()
	}
}

// ebitenLightmap is the render target lighting is accumulated in.
type ebitenLightmap struct {
	img *ebiten.Image
}

func (l *ebitenLightmap) Dispose() {
	if l.img != nil {
		l.img.Deallocate()
		l.img = nil
	}
}
