package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"
	"time"

	"worldshot/capture"
	"worldshot/capture/softhost"
	"worldshot/world"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"
)

// batchJob is one headless screenshot: a generated map and where to save it.
type batchJob struct {
	Name     string              `json:"name"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	TileSize int                 `json:"tile_size"`
	Seed     int64               `json:"seed"`
	Scale    float64             `json:"scale"`
	Hour     *float64            `json:"hour,omitempty"`
	Region   *capture.Annotation `json:"region,omitempty"`
	Output   string              `json:"output"`
}

// withDefaults fills unset fields from the settings.
func (j batchJob) withDefaults() batchJob {
	if j.Name == "" {
		j.Name = gs.MapName
	}
	if j.Width <= 0 {
		j.Width = gs.MapWidth
	}
	if j.Height <= 0 {
		j.Height = gs.MapHeight
	}
	if j.TileSize <= 0 {
		j.TileSize = gs.TileSize
	}
	if j.Scale <= 0 {
		j.Scale = gs.CaptureScale
	}
	return j
}

func loadBatch(path string) ([]batchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var jobs []batchJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// softRenderer draws m on the CPU, lit for the hour returned by hour.
func softRenderer(m *world.Map, hour func(time.Time) float64) softhost.RenderFunc {
	return func(f softhost.Frame) error {
		dst, ok := f.Dst.(*image.RGBA)
		if !ok {
			return fmt.Errorf("render %s: unsupported target %T", m.Name, f.Dst)
		}
		phase := 0
		if f.FrameIndependent {
			phase = int(f.Time.UnixMilli()/500) % world.Variants
		}
		m.Rasterize(dst, f.Viewport, phase)
		if f.Light != nil {
			m.FillLight(f.Light, f.Viewport, world.Ambient(hour(f.Time)))
			world.Multiply(dst, f.Light)
		}
		return nil
	}
}

// runBatch captures every job concurrently, at most workers at a time. Each
// job runs its own pipeline on its own CPU host.
func runBatch(ctx context.Context, jobs []batchJob, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	wg := sizedwaitgroup.New(workers)
	for i, job := range jobs {
		if err := wg.AddWithContext(ctx); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		go func(i int, job batchJob) {
			defer wg.Done()
			if err := runBatchJob(ctx, job.withDefaults(), i+1); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i, job)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func runBatchJob(ctx context.Context, job batchJob, seq int) error {
	start := time.Now()
	m := world.Generate(job.Name, job.Width, job.Height, job.TileSize, job.Seed)
	if job.Region != nil {
		m.SetRegion(job.Region.Left, job.Region.Top, job.Region.Right, job.Region.Bottom)
	}
	hour := captureHour
	if job.Hour != nil {
		h := *job.Hour
		hour = func(time.Time) float64 { return h }
	}

	h := softhost.New(softRenderer(m, hour), gs.MaxSurfaceSize, image.Rect(0, 0, gs.WindowWidth, gs.WindowHeight))
	loc := capture.Location(m.Name)
	out := job.Output
	if out == "" {
		out = outputPath(screenshotDir(), gs.ScreenshotName, "batch", loc, start, seq)
	}
	req := capture.Request{
		Name:            job.Name,
		Output:          out,
		Scale:           job.Scale,
		Region:          m.Bounds(),
		Location:        loc,
		FireDuringEvent: true,
	}
	cfg := gs.captureConfig()
	p, err := capture.Start(h, req, cfg)
	if err != nil {
		statCaptureFailed()
		return fmt.Errorf("batch %q: %w", job.Name, err)
	}
	defer p.Dispose()
	if err := capture.Drive(ctx, p, cfg.PollInterval); err != nil {
		statCaptureFailed()
		return fmt.Errorf("batch %q: %w", job.Name, err)
	}

	size := statCaptureSaved(p.Path(), time.Now())
	sz := p.Size()
	msg := fmt.Sprintf("batch %q: saved %s (%dx%d, %s) in %s", job.Name, p.Path(), sz.X, sz.Y,
		humanize.IBytes(size), durafmt.Parse(time.Since(start)).LimitFirstN(2).Format(shortUnits))
	if p.Scale() != req.Scale {
		msg += fmt.Sprintf(", scale lowered to %.2f", p.Scale())
	}
	logInfo("%s", msg)
	return nil
}
