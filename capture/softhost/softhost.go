// Package softhost implements capture.Host on the CPU. Surfaces are plain
// RGBA images, so it works without a GPU or a frame loop: headless batch
// captures and tests use it.
package softhost

import (
	"fmt"
	"image"
	"image/draw"
	"sync/atomic"
	"time"

	"worldshot/capture"

	xdraw "golang.org/x/image/draw"
)

// Frame is everything a RenderFunc needs to draw one frame.
type Frame struct {
	Dst      draw.Image
	Viewport image.Rectangle
	Location capture.Location
	Time     time.Time
	// Light is the current lightmap, or nil. It is at least as large as Dst.
	Light *image.RGBA
	// FrameIndependent is set while a capture is drawing.
	FrameIndependent bool
}

// RenderFunc draws the world visible through f.Viewport into f.Dst, with
// world point f.Viewport.Min at f.Dst.Bounds().Min.
type RenderFunc func(f Frame) error

// Counters records host activity for tests and logs.
type Counters struct {
	Draws            atomic.Int64
	SurfacesCreated  atomic.Int64
	SurfacesDisposed atomic.Int64
	LightmapsCreated atomic.Int64
	LightmapsFreed   atomic.Int64
	DoubleDisposals  atomic.Int64
}

type Host struct {
	render  RenderFunc
	maxSize int

	viewport         image.Rectangle
	light            *Lightmap
	frameIndependent bool

	Counters Counters
}

var _ capture.Host = (*Host)(nil)

// New returns a host whose surfaces may be at most maxSize pixels on a side
// and whose visible viewport starts as viewport.
func New(render RenderFunc, maxSize int, viewport image.Rectangle) *Host {
	return &Host{render: render, maxSize: maxSize, viewport: viewport}
}

func (h *Host) MaxSurfaceSize() int { return h.maxSize }

func (h *Host) NewSurface(w, ht int) (capture.Surface, error) {
	if w <= 0 || ht <= 0 || w > h.maxSize || ht > h.maxSize {
		return nil, fmt.Errorf("softhost: surface %dx%d outside 1..%d", w, ht, h.maxSize)
	}
	h.Counters.SurfacesCreated.Add(1)
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, w, ht)), host: h, owner: true}, nil
}

func (h *Host) Draw(loc capture.Location, t time.Time, dst capture.Surface) error {
	s := surfaceOf(dst)
	h.Counters.Draws.Add(1)
	f := Frame{
		Dst:              s.img,
		Viewport:         h.viewport,
		Location:         loc,
		Time:             t,
		FrameIndependent: h.frameIndependent,
	}
	if h.light != nil {
		f.Light = h.light.img
	}
	return h.render(f)
}

func (h *Host) Viewport() image.Rectangle { return h.viewport }
func (h *Host) SetViewport(r image.Rectangle) { h.viewport = r }

func (h *Host) AllocLightmap(w, ht int) (capture.Lightmap, error) {
	if w <= 0 || ht <= 0 {
		return nil, fmt.Errorf("softhost: lightmap %dx%d", w, ht)
	}
	h.Counters.LightmapsCreated.Add(1)
	return &Lightmap{img: image.NewRGBA(image.Rect(0, 0, w, ht)), host: h}, nil
}

func (h *Host) Lightmap() capture.Lightmap {
	if h.light == nil {
		return nil
	}
	return h.light
}

func (h *Host) SetLightmap(l capture.Lightmap) {
	if l == nil {
		h.light = nil
		return
	}
	h.light = l.(*Lightmap)
}

// CurrentLightmap is the installed lightmap without the interface wrapping.
func (h *Host) CurrentLightmap() *Lightmap { return h.light }

func (h *Host) SetFrameIndependentDraw(on bool) bool {
	prev := h.frameIndependent
	h.frameIndependent = on
	return prev
}

func (h *Host) Scale(dst, src capture.Surface) {
	d, s := surfaceOf(dst), surfaceOf(src)
	xdraw.NearestNeighbor.Scale(d.img, d.img.Bounds(), s.img, s.img.Bounds(), xdraw.Src, nil)
}

func (h *Host) ReadPixels(src capture.Surface, dst *image.RGBA) {
	s := surfaceOf(src)
	b := s.img.Bounds()
	capture.CheckPixelTarget(b, dst)
	row := 4 * b.Dx()
	for y := 0; y < b.Dy(); y++ {
		so := s.img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], s.img.Pix[so:so+row])
	}
}

func surfaceOf(s capture.Surface) *Surface {
	sf, ok := s.(*Surface)
	if !ok {
		panic(fmt.Sprintf("softhost: foreign surface %T", s))
	}
	if sf.disposed.Load() {
		panic("softhost: use of disposed surface")
	}
	return sf
}

// Surface is an RGBA render target. Views made by SubSurface share pixels
// with their parent and own nothing.
type Surface struct {
	img      *image.RGBA
	host     *Host
	owner    bool
	disposed atomic.Bool
}

func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

// Image exposes the pixels, mostly for tests.
func (s *Surface) Image() *image.RGBA { return s.img }

func (s *Surface) SubSurface(r image.Rectangle) capture.Surface {
	sub := s.img.SubImage(r.Add(s.img.Bounds().Min)).(*image.RGBA)
	return &Surface{img: sub, host: s.host}
}

func (s *Surface) Dispose() {
	if !s.owner {
		return
	}
	if !s.disposed.CompareAndSwap(false, true) {
		s.host.Counters.DoubleDisposals.Add(1)
		return
	}
	s.host.Counters.SurfacesDisposed.Add(1)
}

// Lightmap is the CPU lighting buffer handed to RenderFuncs.
type Lightmap struct {
	img      *image.RGBA
	host     *Host
	disposed atomic.Bool
}

func (l *Lightmap) Image() *image.RGBA { return l.img }

func (l *Lightmap) Dispose() {
	if !l.disposed.CompareAndSwap(false, true) {
		l.host.Counters.DoubleDisposals.Add(1)
		return
	}
	l.host.Counters.LightmapsFreed.Add(1)
}
