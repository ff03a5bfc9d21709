package capture

import (
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"
)

type counters struct {
	produced   atomic.Int64
	composited atomic.Int64
	discarded  atomic.Int64
	writes     atomic.Int64
}

// Stats is a snapshot of a pipeline's progress.
type Stats struct {
	Tiles      int
	Produced   int64
	Composited int64
	Discarded  int64
	Writes     int64
	Queued     int
}

// Capture renders a region in chunks on the Tick goroutine, composites the
// chunks on a background goroutine and writes the result asynchronously.
//
// Tick, Dispose and the accessors must be called from the goroutine that
// owns the Host.
type Capture struct {
	host  Host
	req   Request
	cfg   Config
	state *stateCell
	queue *workQueue
	ctr   counters

	scale   float64
	chunk   int
	tiles   []Tile
	next    int
	started time.Time
	size    image.Point
	path    string

	target  Surface
	scratch Surface
	light   Lightmap

	worker      chan struct{}
	task        atomic.Pointer[WriteTask]
	disposeOnce sync.Once
}

// New allocates the canvas and starts the compositor. Allocation failures
// lower the scale by cfg.ScaleStep until the canvas fits; if nothing fits
// the capture starts in Error and never renders.
func New(h Host, req Request, cfg Config) *Capture {
	cfg = cfg.withDefaults()
	c := &Capture{
		host:  h,
		req:   req,
		cfg:   cfg,
		state: newStateCell(),
		queue: newWorkQueue(cfg.QueueDepth),
		path:  req.Output,
	}
	if err := req.validate(); err != nil {
		c.fail("setup", err)
		return c
	}
	canvas, scale, err := allocateCanvas(req.Region, req.Scale, cfg)
	if err != nil {
		c.fail("allocate", err)
		return c
	}
	if scale != req.Scale {
		Debugf("capture: %q scale lowered from %.2f to %.2f", req.Name, req.Scale, scale)
	}
	c.scale = scale
	c.chunk = chunkSizeFor(h.MaxSurfaceSize(), cfg.ChunkSize, scale)
	c.tiles = Tiles(req.Region, c.chunk, scale)
	c.size = canvas.Bounds().Size()
	c.worker = make(chan struct{})
	go c.composite(canvas, c.worker)
	return c
}

func chunkSizeFor(maxSurface, want int, scale float64) int {
	n := min(want, maxSurface)
	if scale != 1 {
		n = min(n, int(float64(maxSurface-1)/scale))
	}
	return max(n, 1)
}

// Tick advances the pipeline. The first call renders; later calls continue
// rendering when ChunksPerTick is set, or poll the disk write. Terminal
// states dispose the pipeline.
func (c *Capture) Tick(now time.Time) State {
	switch c.state.load() {
	case BeforeCapture:
		if c.state.cas(BeforeCapture, Capturing) {
			c.started = now
			c.render()
		}
	case Capturing:
		c.render()
	case Writing:
		c.pollWrite()
	}
	s := c.state.load()
	if s.Terminal() {
		c.Dispose()
	}
	return s
}

func (c *Capture) State() State { return c.state.load() }

// Scale is the scale actually used, which may be below the requested one.
func (c *Capture) Scale() float64 { return c.scale }

// Path is the output path; after completion it is the file written.
func (c *Capture) Path() string { return c.path }

// Size is the size of the final image.
func (c *Capture) Size() image.Point { return c.size }

func (c *Capture) Err() error { return c.state.error() }

func (c *Capture) Stats() Stats {
	return Stats{
		Tiles:      len(c.tiles),
		Produced:   c.ctr.produced.Load(),
		Composited: c.ctr.composited.Load(),
		Discarded:  c.ctr.discarded.Load(),
		Writes:     c.ctr.writes.Load(),
		Queued:     c.queue.len(),
	}
}

// Cancel forces the capture into Error. The next Tick disposes it.
func (c *Capture) Cancel() {
	c.state.fail(ErrAborted)
}

// Dispose releases the render surfaces and lightmap, drops queued chunks
// and forgets the compositor and write task. A capture that has not
// finished is moved to Error so its goroutines stop. Safe to call any
// number of times.
func (c *Capture) Dispose() {
	c.disposeOnce.Do(func() {
		if c.state.fail(ErrAborted) {
			Debugf("capture: %q disposed while running", c.req.Name)
		}
		if c.target != nil {
			c.target.Dispose()
			c.target = nil
		}
		if c.scratch != nil {
			c.scratch.Dispose()
			c.scratch = nil
		}
		if c.light != nil {
			c.light.Dispose()
			c.light = nil
		}
		c.ctr.discarded.Add(int64(c.queue.drain()))
		c.worker = nil
		c.task.Store(nil)
	})
}

func (c *Capture) fail(phase string, err error) {
	if c.state.fail(err) {
		logPhase(c.req.Name, phase, c.req.Output, err)
	}
}

func (c *Capture) recoverPhase(phase string) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("%s: panic: %v", phase, r)
	Logf("capture: %q %v\n%s", c.req.Name, err, debug.Stack())
	c.state.fail(err)
	if c.cfg.PanicOnInvariant {
		panic(r)
	}
}

// render produces chunks until the budget for this tick is spent. Host
// state touched here is restored on every exit path.
func (c *Capture) render() {
	h := c.host
	viewport := h.Viewport()
	light := h.Lightmap()
	frameIndependent := h.SetFrameIndependentDraw(true)
	defer func() {
		h.SetViewport(viewport)
		h.SetLightmap(light)
		h.SetFrameIndependentDraw(frameIndependent)
	}()
	defer c.recoverPhase("render")

	if err := c.ensureTargets(); err != nil {
		c.fail("render", err)
		return
	}
	h.SetLightmap(c.light)

	for n := 0; c.next < len(c.tiles); n++ {
		if c.cfg.ChunksPerTick > 0 && n >= c.cfg.ChunksPerTick {
			return
		}
		if c.state.load() == Error {
			return
		}
		chunk, err := c.renderTile(c.tiles[c.next])
		if err != nil {
			c.fail("render", fmt.Errorf("chunk %v: %w", c.tiles[c.next].Src, err))
			return
		}
		c.ctr.produced.Add(1)
		if err := c.queue.push(chunk, c.state.aborted); err != nil {
			if chunk.release() {
				c.ctr.discarded.Add(1)
			}
			return
		}
		c.next++
	}
	if c.state.cas(Capturing, Transferring) {
		c.queue.close()
	}
}

func (c *Capture) ensureTargets() error {
	if c.target != nil {
		return nil
	}
	h := c.host
	w := min(c.chunk, c.req.Region.Dx())
	ht := min(c.chunk, c.req.Region.Dy())
	var err error
	if c.target, err = h.NewSurface(w, ht); err != nil {
		return fmt.Errorf("render target %dx%d: %w", w, ht, err)
	}
	if c.scale != 1 {
		var sw, sh int
		for _, t := range c.tiles {
			if !t.Resample {
				sw, sh = max(sw, t.Dest.Dx()), max(sh, t.Dest.Dy())
			}
		}
		if sw > 0 {
			if c.scratch, err = h.NewSurface(sw, sh); err != nil {
				return fmt.Errorf("scale target %dx%d: %w", sw, sh, err)
			}
		}
	}
	if c.light, err = h.AllocLightmap(w, ht); err != nil {
		return fmt.Errorf("lightmap %dx%d: %w", w, ht, err)
	}
	return nil
}

func (c *Capture) renderTile(t Tile) (*Chunk, error) {
	h := c.host
	target := c.target.SubSurface(image.Rect(0, 0, t.Src.Dx(), t.Src.Dy()))
	h.SetViewport(t.Src)
	if err := h.Draw(c.req.Location, c.started, target); err != nil {
		return nil, err
	}
	if t.Resample {
		img := resampleTile(extractPixels(h, target), t, c.req.Region, c.size)
		return &Chunk{Image: img, Dest: t.Dest}, nil
	}
	out := target
	if c.scale != 1 {
		out = c.scratch.SubSurface(image.Rect(0, 0, t.Dest.Dx(), t.Dest.Dy()))
		h.Scale(out, target)
	}
	return &Chunk{Image: extractPixels(h, out), Dest: t.Dest}, nil
}

func (c *Capture) pollWrite() {
	t := c.task.Load()
	if t == nil {
		return
	}
	done, err := t.Poll()
	if !done {
		return
	}
	c.path = t.Path()
	if err != nil {
		c.state.fail(err)
		return
	}
	c.state.cas(Writing, Complete)
}

// composite owns canvas until it hands it to the writer. It stops as soon
// as the capture is aborted.
func (c *Capture) composite(canvas *image.RGBA, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("composite: panic: %v", r)
			Logf("capture: %q %v\n%s", c.req.Name, err, debug.Stack())
			c.state.fail(err)
			c.ctr.discarded.Add(int64(c.queue.drain()))
		}
	}()
	for {
		select {
		case <-c.state.aborted:
			c.ctr.discarded.Add(int64(c.queue.drain()))
			return
		case ch, ok := <-c.queue.ch:
			if !ok {
				if c.state.cas(Transferring, Writing) {
					c.task.Store(startWrite(c.req.Name, canvas, c.req.Output, c.cfg, c.state, &c.ctr))
				}
				return
			}
			if c.state.load() == Error {
				if ch.release() {
					c.ctr.discarded.Add(1)
				}
				continue
			}
			xdraw.Copy(canvas, ch.Dest.Min, ch.Image, ch.Image.Bounds(), xdraw.Src, nil)
			if ch.release() {
				c.ctr.composited.Add(1)
			}
		}
	}
}
