package capture_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"worldshot/capture"
	"worldshot/capture/softhost"
)

// gradient paints each world pixel with a colour derived from its
// coordinates, so misplaced chunks show up as pixel differences.
func gradient(f softhost.Frame) error {
	dst := f.Dst.(*image.RGBA)
	b := dst.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetRGBA(b.Min.X+x, b.Min.Y+y, gradientAt(f.Viewport.Min.X+x, f.Viewport.Min.Y+y))
		}
	}
	return nil
}

func gradientAt(wx, wy int) color.RGBA {
	return color.RGBA{uint8(wx), uint8(wy), uint8(wx/7 + wy/3), 255}
}

func testConfig() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.Compression = png.BestSpeed
	cfg.PanicOnInvariant = true
	return cfg
}

func drive(t *testing.T, p capture.Pipeline) capture.State {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if s := p.Tick(time.Unix(1700000000, 0)); s.Terminal() {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pipeline stuck in %v", p.State())
	return capture.Error
}

func decodePNG(t *testing.T, path string) *image.RGBA {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

func TestLargeRegionUsesTwoChunks(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 2048, image.Rect(0, 0, 640, 480))
	req := capture.Request{
		Name:   "wide",
		Output: filepath.Join(dir, "wide.png"),
		Scale:  1,
		Region: image.Rect(0, 0, 4096, 2048),
	}
	p, err := capture.Start(h, req, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := p.(*capture.Capture); !ok {
		t.Fatalf("Start picked %T, want chunked capture", p)
	}
	if s := drive(t, p); s != capture.Complete {
		t.Fatalf("state = %v (%v)", s, p.Err())
	}
	st := p.Stats()
	if st.Tiles != 2 || st.Produced != 2 || st.Composited != 2 {
		t.Fatalf("stats = %+v, want 2 tiles produced and composited", st)
	}
	if got := p.Size(); got != image.Pt(4096, 2048) {
		t.Fatalf("size = %v, want 4096x2048", got)
	}
	img := decodePNG(t, p.Path())
	if img.Bounds().Size() != image.Pt(4096, 2048) {
		t.Fatalf("file is %v", img.Bounds())
	}
	if got, want := img.RGBAAt(3000, 1000), gradientAt(3000, 1000); got != want {
		t.Fatalf("pixel (3000,1000) = %v, want %v", got, want)
	}
}

func TestSmallRegionUsesSinglePass(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 2048, image.Rect(0, 0, 640, 480))
	req := capture.Request{
		Name:   "small",
		Output: filepath.Join(dir, "small.png"),
		Scale:  1,
		Region: image.Rect(100, 100, 612, 612),
	}
	p, err := capture.Start(h, req, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := p.(*capture.SinglePass); !ok {
		t.Fatalf("Start picked %T, want single pass", p)
	}
	if s := p.Tick(time.Now()); s != capture.Complete {
		t.Fatalf("first tick state = %v (%v)", s, p.Err())
	}
	if n := p.Stats().Writes; n != 1 {
		t.Fatalf("writes = %d, want 1", n)
	}
	if _, err := os.Stat(p.Path()); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if h.Counters.Draws.Load() != 1 {
		t.Fatalf("draws = %d, want 1", h.Counters.Draws.Load())
	}
}

func TestChunkedMatchesSinglePass(t *testing.T) {
	tests := []struct {
		name   string
		region image.Rectangle
		chunk  int
		scale  float64
	}{
		{"scale 1", image.Rect(37, 11, 837, 611), 256, 1},
		{"ragged chunks", image.Rect(0, 0, 700, 500), 300, 1},
		{"half scale", image.Rect(0, 0, 1024, 768), 256, 0.5},
		{"double scale", image.Rect(16, 16, 336, 256), 64, 2},
		{"fractional chunk scale", image.Rect(13, 7, 333, 271), 97, 0.7},
		{"coprime scale", image.Rect(0, 0, 501, 333), 64, 0.37},
		{"fractional upscale", image.Rect(5, 3, 262, 131), 50, 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			run := func(force bool, out string) *image.RGBA {
				h := softhost.New(gradient, 4096, image.Rect(0, 0, 320, 200))
				cfg := testConfig()
				cfg.ChunkSize = tt.chunk
				cfg.ForceChunked = force
				req := capture.Request{Name: out, Output: filepath.Join(dir, out), Scale: tt.scale, Region: tt.region}
				p, err := capture.Start(h, req, cfg)
				if err != nil {
					t.Fatalf("Start: %v", err)
				}
				if s := drive(t, p); s != capture.Complete {
					t.Fatalf("%s: state = %v (%v)", out, s, p.Err())
				}
				return decodePNG(t, p.Path())
			}
			single := run(false, "single.png")
			chunked := run(true, "chunked.png")
			if single.Bounds() != chunked.Bounds() {
				t.Fatalf("bounds differ: %v vs %v", single.Bounds(), chunked.Bounds())
			}
			for i := range single.Pix {
				if single.Pix[i] != chunked.Pix[i] {
					px := i / 4
					w := single.Bounds().Dx()
					t.Fatalf("pixel (%d,%d) differs: %v vs %v", px%w, px/w,
						single.RGBAAt(px%w, px/w), chunked.RGBAAt(px%w, px/w))
				}
			}
		})
	}
}

func TestAllocationFallbackLowersScale(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 2048, image.Rect(0, 0, 640, 480))
	var tried []int
	cfg := testConfig()
	cfg.Allocate = func(w, ht int) (*image.RGBA, error) {
		tried = append(tried, w)
		if w > 2048 {
			return nil, fmt.Errorf("%w: %dx%d", capture.ErrAllocation, w, ht)
		}
		return image.NewRGBA(image.Rect(0, 0, w, ht)), nil
	}
	req := capture.Request{Name: "fallback", Output: filepath.Join(dir, "f.png"), Scale: 1, Region: image.Rect(0, 0, 4096, 2048)}
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := p.Scale(); got != 0.5 {
		t.Fatalf("scale = %v, want 0.5 (tried widths %v)", got, tried)
	}
	if len(tried) != 3 || tried[0] != 4096 || tried[1] != 3072 || tried[2] != 2048 {
		t.Fatalf("tried widths %v, want [4096 3072 2048]", tried)
	}
	if s := drive(t, p); s != capture.Complete {
		t.Fatalf("state = %v (%v)", s, p.Err())
	}
	if img := decodePNG(t, p.Path()); img.Bounds().Size() != image.Pt(2048, 1024) {
		t.Fatalf("file is %v, want 2048x1024", img.Bounds())
	}
}

func TestAllocationFailureNeverRenders(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 256, image.Rect(0, 0, 64, 64))
	cfg := testConfig()
	cfg.Allocate = func(w, ht int) (*image.RGBA, error) { return nil, capture.ErrAllocation }
	req := capture.Request{Name: "oom", Output: filepath.Join(dir, "oom.png"), Scale: 1, Region: image.Rect(0, 0, 1024, 1024)}
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := p.Tick(time.Now()); s != capture.Error {
		t.Fatalf("state = %v, want error", s)
	}
	if !errors.Is(p.Err(), capture.ErrAllocation) {
		t.Fatalf("err = %v, want ErrAllocation", p.Err())
	}
	if n := h.Counters.Draws.Load(); n != 0 {
		t.Fatalf("host drew %d frames", n)
	}
	if _, err := os.Stat(req.Output); !os.IsNotExist(err) {
		t.Fatalf("output exists after failed allocation")
	}
}

func TestAllocationFallbackStopsAtFloor(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 2048, image.Rect(0, 0, 64, 64))
	var tried []int
	cfg := testConfig()
	cfg.ScaleStep = 0.1
	cfg.Allocate = func(w, ht int) (*image.RGBA, error) {
		tried = append(tried, w)
		if w > 5 {
			return nil, fmt.Errorf("%w: %dx%d", capture.ErrAllocation, w, ht)
		}
		return image.NewRGBA(image.Rect(0, 0, w, ht)), nil
	}
	for _, force := range []bool{false, true} {
		tried = nil
		cfg.ForceChunked = force
		req := capture.Request{Name: "floor", Output: filepath.Join(dir, "floor.png"), Scale: 1, Region: image.Rect(0, 0, 200, 100)}
		p, err := capture.Start(h, req, cfg)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if s := p.Tick(time.Now()); s != capture.Error {
			t.Fatalf("forced=%v: state = %v at scale %v, want error", force, s, p.Scale())
		}
		if !errors.Is(p.Err(), capture.ErrAllocation) {
			t.Fatalf("forced=%v: err = %v, want ErrAllocation", force, p.Err())
		}
		if len(tried) != 10 || tried[len(tried)-1] != 20 {
			t.Fatalf("forced=%v: tried widths %v, want ten steps ending at 20", force, tried)
		}
		if _, err := os.Stat(req.Output); !os.IsNotExist(err) {
			t.Fatalf("forced=%v: output exists", force)
		}
	}
	if n := h.Counters.Draws.Load(); n != 0 {
		t.Fatalf("host drew %d frames", n)
	}
}

func TestScaleAtFloorIsRejected(t *testing.T) {
	h := softhost.New(gradient, 2048, image.Rect(0, 0, 64, 64))
	cfg := testConfig()
	cfg.MinScale = 0.1
	req := capture.Request{Name: "tiny", Output: filepath.Join(t.TempDir(), "t.png"), Scale: 0.1, Region: image.Rect(0, 0, 200, 100)}
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := p.Tick(time.Now()); s != capture.Error || !errors.Is(p.Err(), capture.ErrAllocation) {
		t.Fatalf("state = %v (%v), want allocation error", s, p.Err())
	}
}

func TestErrorMidCaptureStopsCompositing(t *testing.T) {
	dir := t.TempDir()
	var draws atomic.Int64
	failing := func(f softhost.Frame) error {
		if draws.Add(1) == 3 {
			return errors.New("device lost")
		}
		return gradient(f)
	}
	h := softhost.New(failing, 128, image.Rect(3, 4, 67, 68))
	prevLight := h.CurrentLightmap()
	cfg := testConfig()
	cfg.PanicOnInvariant = false
	req := capture.Request{Name: "broken", Output: filepath.Join(dir, "broken.png"), Scale: 1, Region: image.Rect(0, 0, 512, 512)}
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := p.Tick(time.Now()); s != capture.Error {
		t.Fatalf("state = %v, want error", s)
	}

	settled := func() capture.Stats {
		deadline := time.Now().Add(5 * time.Second)
		for {
			st := p.Stats()
			if st.Composited+st.Discarded == st.Produced && st.Queued == 0 {
				return st
			}
			if time.Now().After(deadline) {
				t.Fatalf("chunks never settled: %+v", st)
			}
			time.Sleep(time.Millisecond)
		}
	}
	st := settled()
	if st.Produced != 2 {
		t.Fatalf("produced %d chunks, want 2", st.Produced)
	}
	time.Sleep(20 * time.Millisecond)
	if again := p.Stats(); again.Composited != st.Composited || again.Produced != st.Produced {
		t.Fatalf("pipeline kept working after error: %+v then %+v", st, again)
	}
	if _, err := os.Stat(req.Output); !os.IsNotExist(err) {
		t.Fatalf("output written despite error")
	}
	if h.Viewport() != image.Rect(3, 4, 67, 68) {
		t.Fatalf("viewport not restored: %v", h.Viewport())
	}
	if h.CurrentLightmap() != prevLight {
		t.Fatalf("lightmap not restored")
	}
	if h.SetFrameIndependentDraw(false) {
		t.Fatalf("frame independent drawing left on")
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 128, image.Rect(0, 0, 64, 64))
	req := capture.Request{Name: "dispose", Output: filepath.Join(dir, "d.png"), Scale: 0.5, Region: image.Rect(0, 0, 512, 300)}

	early, err := capture.Start(h, req, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	early.Dispose()
	early.Dispose()
	if s := early.Tick(time.Now()); s != capture.Error {
		t.Fatalf("tick after dispose = %v, want error", s)
	}
	early.Dispose()

	done, err := capture.Start(h, req, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := drive(t, done); s != capture.Complete {
		t.Fatalf("state = %v (%v)", s, done.Err())
	}
	done.Dispose()
	done.Dispose()

	if n := h.Counters.DoubleDisposals.Load(); n != 0 {
		t.Fatalf("%d double disposals", n)
	}
	if c, d := h.Counters.SurfacesCreated.Load(), h.Counters.SurfacesDisposed.Load(); c != d {
		t.Fatalf("surfaces created %d, disposed %d", c, d)
	}
	if c, d := h.Counters.LightmapsCreated.Load(), h.Counters.LightmapsFreed.Load(); c != d {
		t.Fatalf("lightmaps created %d, freed %d", c, d)
	}
	st := done.Stats()
	if st.Composited != st.Produced || st.Discarded != 0 {
		t.Fatalf("stats %+v", st)
	}
}

func TestChunksPerTickSpreadsRendering(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 256, image.Rect(0, 0, 64, 64))
	cfg := testConfig()
	cfg.ChunkSize = 100
	cfg.ChunksPerTick = 2
	req := capture.Request{Name: "spread", Output: filepath.Join(dir, "s.png"), Scale: 1, Region: image.Rect(0, 0, 300, 200)}
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := p.Tick(time.Now()); s != capture.Capturing {
		t.Fatalf("after one tick state = %v, want capturing", s)
	}
	if n := h.Counters.Draws.Load(); n != 2 {
		t.Fatalf("draws after one tick = %d, want 2", n)
	}
	if s := drive(t, p); s != capture.Complete {
		t.Fatalf("state = %v (%v)", s, p.Err())
	}
	if n := h.Counters.Draws.Load(); n != 6 {
		t.Fatalf("draws = %d, want 6", n)
	}
}

func TestStartRejectsInvalidRequests(t *testing.T) {
	h := softhost.New(gradient, 256, image.Rect(0, 0, 64, 64))
	bad := []capture.Request{
		{Name: "no output", Scale: 1, Region: image.Rect(0, 0, 10, 10)},
		{Name: "zero scale", Output: "x.png", Region: image.Rect(0, 0, 10, 10)},
		{Name: "empty region", Output: "x.png", Scale: 1},
	}
	for _, req := range bad {
		if _, err := capture.Start(h, req, testConfig()); !errors.Is(err, capture.ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", req.Name, err)
		}
	}
}

func TestSanitizedRetryEndToEnd(t *testing.T) {
	dir := t.TempDir()
	h := softhost.New(gradient, 1024, image.Rect(0, 0, 64, 64))
	bad := filepath.Join(dir, "out", "farm\x00spring.png")
	req := capture.Request{Name: "retry", Output: bad, Scale: 1, Region: image.Rect(0, 0, 1500, 200)}
	p, err := capture.Start(h, req, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := drive(t, p); s != capture.Complete {
		t.Fatalf("state = %v (%v)", s, p.Err())
	}
	if p.Path() != capture.SanitizePath(bad) {
		t.Fatalf("path = %q, want sanitized %q", p.Path(), capture.SanitizePath(bad))
	}
	if _, err := os.Stat(p.Path()); err != nil {
		t.Fatalf("sanitized output missing: %v", err)
	}
	if n := p.Stats().Writes; n != 2 {
		t.Fatalf("writes = %d, want 2", n)
	}
}

func TestDriveCancels(t *testing.T) {
	dir := t.TempDir()
	slow := func(f softhost.Frame) error {
		time.Sleep(5 * time.Millisecond)
		return gradient(f)
	}
	h := softhost.New(slow, 64, image.Rect(0, 0, 64, 64))
	cfg := testConfig()
	cfg.ChunksPerTick = 1
	req := capture.Request{Name: "cancel", Output: filepath.Join(dir, "c.png"), Scale: 1, Region: image.Rect(0, 0, 1024, 1024)}
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := capture.Drive(ctx, p, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drive = %v, want deadline exceeded", err)
	}
	if p.State() != capture.Error {
		t.Fatalf("state = %v, want error", p.State())
	}
}

// brokenHost panics while drawing, like a host handed a mismatched target.
type brokenHost struct{ *softhost.Host }

func (brokenHost) Draw(capture.Location, time.Time, capture.Surface) error {
	panic("pixel target mismatch")
}

func TestInvariantPanicsReachCaller(t *testing.T) {
	for _, region := range []image.Rectangle{image.Rect(0, 0, 100, 100), image.Rect(0, 0, 1024, 1024)} {
		vp := image.Rect(5, 6, 69, 70)
		h := softhost.New(gradient, 256, vp)
		req := capture.Request{Name: "broken", Output: filepath.Join(t.TempDir(), "b.png"), Scale: 1, Region: region}
		p, err := capture.Start(brokenHost{h}, req, capture.DefaultConfig())
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Fatalf("%v: Tick returned without panicking", region)
				}
			}()
			p.Tick(time.Now())
		}()
		if p.State() != capture.Error {
			t.Fatalf("%v: state = %v, want error", region, p.State())
		}
		if h.Viewport() != vp {
			t.Fatalf("%v: viewport not restored: %v", region, h.Viewport())
		}
		p.Dispose()
	}
}
