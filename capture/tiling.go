package capture

import "image"

// Tile is one render window: Src in world pixels and Dest on the canvas.
type Tile struct {
	Src  image.Rectangle
	Dest image.Rectangle
	// Resample is set when scaling Src onto Dest on its own would not land
	// on the canvas sampling grid. Such windows are read back unscaled and
	// sampled with GridSource on the CPU.
	Resample bool
}

// GridSource returns the source pixel sampled by output pixel d when length
// source pixels are scaled nearest-neighbour to out pixels. Both are
// relative to the start of the region.
func GridSource(d, length, out int) int {
	return int((2*int64(d) + 1) * int64(length) / (2 * int64(out)))
}

type span struct {
	s0, s1 int // source, relative to the region
	d0, d1 int // canvas
	exact  bool
}

// axisSpans splits one axis into windows of at most chunk source pixels.
// When a multiple of the scaling period fits into chunk, every window
// starts on a period boundary and scales exactly like the whole axis.
// Otherwise the canvas is split instead and each window covers the source
// pixels its canvas pixels sample.
func axisSpans(length, out, chunk int) []span {
	g := gcd(length, out)
	p, q := length/g, out/g
	var spans []span
	if p <= chunk {
		step := chunk / p * p
		for s := 0; s < length; s += step {
			e := min(s+step, length)
			spans = append(spans, span{s0: s, s1: e, d0: s / p * q, d1: e / p * q, exact: true})
		}
		return spans
	}
	n := int(int64(chunk-1)*int64(out)/int64(length)) + 1
	for d := 0; d < out; d += n {
		e := min(d+n, out)
		spans = append(spans, span{
			s0: GridSource(d, length, out),
			s1: GridSource(e-1, length, out) + 1,
			d0: d,
			d1: e,
		})
	}
	return spans
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Tiles splits region into windows of at most chunk world pixels, row by
// row. The Dest rectangles cover the canvas of ScaledSize(region, scale)
// exactly once, and every canvas pixel samples the same world pixel it
// would if the region were scaled in one piece.
func Tiles(region image.Rectangle, chunk int, scale float64) []Tile {
	if chunk <= 0 || region.Empty() {
		return nil
	}
	cw, ch := ScaledSize(region, scale)
	xs := axisSpans(region.Dx(), cw, chunk)
	ys := axisSpans(region.Dy(), ch, chunk)
	tiles := make([]Tile, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			tiles = append(tiles, Tile{
				Src:      image.Rect(x.s0, y.s0, x.s1, y.s1).Add(region.Min),
				Dest:     image.Rect(x.d0, y.d0, x.d1, y.d1),
				Resample: !x.exact || !y.exact,
			})
		}
	}
	return tiles
}

// resampleTile samples src, the unscaled pixels of t.Src, onto a bitmap of
// t.Dest's size using the grid of region scaled to a canvas of size canvas.
func resampleTile(src *image.RGBA, t Tile, region image.Rectangle, canvas image.Point) *image.RGBA {
	dw, dh := t.Dest.Dx(), t.Dest.Dy()
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))
	off := t.Src.Min.Sub(region.Min)
	sx := make([]int, dw)
	for x := range sx {
		sx[x] = GridSource(t.Dest.Min.X+x, region.Dx(), canvas.X) - off.X
	}
	for y := 0; y < dh; y++ {
		sy := GridSource(t.Dest.Min.Y+y, region.Dy(), canvas.Y) - off.Y
		row := src.Pix[sy*src.Stride:]
		d := out.Pix[y*out.Stride:]
		for x, s := range sx {
			copy(d[4*x:4*x+4], row[4*s:4*s+4])
		}
	}
	return out
}
