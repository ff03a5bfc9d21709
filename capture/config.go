package capture

import (
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/dustin/go-humanize"
)

// Config holds the tunables of a capture. None of the values encode a
// correctness requirement.
type Config struct {
	// ChunkSize is the edge of one render window in world pixels. It is
	// clamped to what the host can allocate.
	ChunkSize int
	// ChunksPerTick limits how many chunks one Tick renders. Zero renders
	// every chunk on the first tick.
	ChunksPerTick int
	// QueueDepth bounds the chunks in flight between renderer and compositor.
	QueueDepth int
	// PollInterval is how often Drive ticks a pipeline.
	PollInterval time.Duration
	// ScaleStep is subtracted from the scale each time the canvas cannot be
	// allocated.
	ScaleStep float64
	// MinScale is the floor of the allocation fallback. A scale at or below
	// it is never tried.
	MinScale float64
	// WriteRetries is how often a failed write is retried with a sanitized
	// path.
	WriteRetries int
	// MaxCanvasBytes caps the size of the final canvas for the default
	// allocator.
	MaxCanvasBytes int64
	Compression    png.CompressionLevel
	// ForceChunked disables the single-pass path.
	ForceChunked bool
	// PanicOnInvariant re-raises panics caught at phase boundaries after
	// the host state has been restored. Without it they only move the
	// capture to Error.
	PanicOnInvariant bool
	// Allocate creates the final canvas. Nil uses MaxCanvasBytes.
	Allocate func(w, h int) (*image.RGBA, error)
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:      2048,
		QueueDepth:     4,
		PollInterval:   10 * time.Millisecond,
		ScaleStep:      0.25,
		MinScale:       0.01,
		WriteRetries:   1,
		MaxCanvasBytes: 2 << 30,
		Compression:    png.DefaultCompression,

		PanicOnInvariant: true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.ScaleStep <= 0 {
		c.ScaleStep = def.ScaleStep
	}
	if c.MinScale <= 0 {
		c.MinScale = def.MinScale
	}
	if c.WriteRetries < 0 {
		c.WriteRetries = 0
	}
	if c.MaxCanvasBytes <= 0 {
		c.MaxCanvasBytes = def.MaxCanvasBytes
	}
	if c.Allocate == nil {
		max := c.MaxCanvasBytes
		c.Allocate = func(w, h int) (*image.RGBA, error) {
			return allocateRGBA(w, h, max)
		}
	}
	return c
}

func allocateRGBA(w, h int, max int64) (img *image.RGBA, err error) {
	need := int64(w) * int64(h) * 4
	if w <= 0 || h <= 0 || need > max {
		return nil, fmt.Errorf("%w: %dx%d needs %s, limit %s", ErrAllocation, w, h,
			humanize.IBytes(uint64(need)), humanize.IBytes(uint64(max)))
	}
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %dx%d: %v", ErrAllocation, w, h, r)
		}
	}()
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// scaleEpsilon absorbs floating-point error in stepped scales.
const scaleEpsilon = 1e-9

// allocateCanvas tries the requested scale and steps it down until the
// allocator succeeds. It returns the scale actually used.
func allocateCanvas(region image.Rectangle, scale float64, cfg Config) (*image.RGBA, float64, error) {
	var last error
	for i := 0; ; i++ {
		s := scale - float64(i)*cfg.ScaleStep
		if s <= cfg.MinScale+scaleEpsilon {
			break
		}
		w, h := ScaledSize(region, s)
		img, err := cfg.Allocate(w, h)
		if err == nil {
			return img, s, nil
		}
		last = err
		Debugf("capture: canvas %dx%d at scale %.2f: %v", w, h, s, err)
	}
	if last == nil {
		last = fmt.Errorf("%w: scale %g is not above the minimum %g", ErrAllocation, scale, cfg.MinScale)
	}
	return nil, 0, last
}
