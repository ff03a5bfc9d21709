package capture

import (
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"time"
)

// SinglePass captures a region that fits in one render target. Everything,
// including the file write, happens inside the first Tick.
type SinglePass struct {
	host  Host
	req   Request
	cfg   Config
	state *stateCell
	ctr   counters

	scale float64
	size  image.Point
	path  string

	disposeOnce sync.Once
}

func NewSinglePass(h Host, req Request, cfg Config) *SinglePass {
	p := &SinglePass{
		host:  h,
		req:   req,
		cfg:   cfg.withDefaults(),
		state: newStateCell(),
		scale: req.Scale,
		path:  req.Output,
	}
	if err := req.validate(); err != nil {
		p.fail("setup", err)
	}
	return p
}

func (p *SinglePass) Tick(now time.Time) State {
	if p.state.cas(BeforeCapture, Capturing) {
		p.run(now)
	}
	s := p.state.load()
	if s.Terminal() {
		p.Dispose()
	}
	return s
}

func (p *SinglePass) State() State { return p.state.load() }
func (p *SinglePass) Scale() float64 { return p.scale }
func (p *SinglePass) Path() string { return p.path }
func (p *SinglePass) Size() image.Point { return p.size }
func (p *SinglePass) Err() error { return p.state.error() }
func (p *SinglePass) Cancel() { p.state.fail(ErrAborted) }

func (p *SinglePass) Stats() Stats {
	n := int64(0)
	if p.state.load() == Complete {
		n = 1
	}
	return Stats{Tiles: 1, Produced: n, Composited: n, Writes: p.ctr.writes.Load()}
}

// Dispose is idempotent. The single-pass path holds no resources between
// ticks, so it only makes sure an unfinished capture reads as Error.
func (p *SinglePass) Dispose() {
	p.disposeOnce.Do(func() {
		p.state.fail(ErrAborted)
	})
}

func (p *SinglePass) fail(phase string, err error) {
	if p.state.fail(err) {
		logPhase(p.req.Name, phase, p.req.Output, err)
	}
}

func (p *SinglePass) run(now time.Time) {
	h := p.host
	var target, scaled Surface
	var light Lightmap

	viewport := h.Viewport()
	prevLight := h.Lightmap()
	frameIndependent := h.SetFrameIndependentDraw(true)
	defer func() {
		h.SetViewport(viewport)
		h.SetLightmap(prevLight)
		h.SetFrameIndependentDraw(frameIndependent)
		for _, s := range []Surface{target, scaled} {
			if s != nil {
				s.Dispose()
			}
		}
		if light != nil {
			light.Dispose()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("render: panic: %v", r)
			Logf("capture: %q %v\n%s", p.req.Name, err, debug.Stack())
			p.state.fail(err)
			if p.cfg.PanicOnInvariant {
				panic(r)
			}
		}
	}()

	region := p.req.Region
	canvas, scale, err := allocateCanvas(region, p.req.Scale, p.cfg)
	if err != nil {
		p.fail("allocate", err)
		return
	}
	p.scale = scale
	p.size = canvas.Bounds().Size()

	if target, err = h.NewSurface(region.Dx(), region.Dy()); err != nil {
		p.fail("render", err)
		return
	}
	if light, err = h.AllocLightmap(region.Dx(), region.Dy()); err != nil {
		p.fail("render", err)
		return
	}
	h.SetLightmap(light)
	h.SetViewport(region)
	if err := h.Draw(p.req.Location, now, target); err != nil {
		p.fail("render", err)
		return
	}
	out := target
	if scale != 1 {
		if scaled, err = h.NewSurface(p.size.X, p.size.Y); err != nil {
			p.fail("render", err)
			return
		}
		h.Scale(scaled, target)
		out = scaled
	}
	h.ReadPixels(out, canvas)

	p.state.cas(Capturing, Transferring)
	p.state.cas(Transferring, Writing)
	path, err := writeImage(p.req.Name, canvas, p.req.Output, p.cfg, &p.ctr)
	p.path = path
	if err != nil {
		p.state.fail(err)
		return
	}
	p.state.cas(Writing, Complete)
}
