package capture

import (
	"context"
	"image"
	"time"
)

// Pipeline is a running capture, either chunked or single-pass.
type Pipeline interface {
	Tick(now time.Time) State
	State() State
	Scale() float64
	Path() string
	Size() image.Point
	Err() error
	Stats() Stats
	Cancel()
	Dispose()
}

var (
	_ Pipeline = (*Capture)(nil)
	_ Pipeline = (*SinglePass)(nil)
)

// Start validates req and picks the single-pass path when the region fits
// into one host surface, the chunked path otherwise.
func Start(h Host, req Request, cfg Config) (Pipeline, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if !cfg.ForceChunked && fitsSinglePass(h.MaxSurfaceSize(), req) {
		return NewSinglePass(h, req, cfg), nil
	}
	return New(h, req, cfg), nil
}

func fitsSinglePass(maxSurface int, req Request) bool {
	w, h := ScaledSize(req.Region, req.Scale)
	return req.Region.Dx() <= maxSurface && req.Region.Dy() <= maxSurface &&
		w <= maxSurface && h <= maxSurface
}

// Drive ticks p every interval until it reaches a terminal state or ctx is
// done. It is meant for hosts without a frame loop of their own; the host
// must accept rendering calls from the calling goroutine.
func Drive(ctx context.Context, p Pipeline, interval time.Duration) error {
	if err := ctx.Err(); err != nil {
		p.Cancel()
		p.Dispose()
		return err
	}
	if s := p.Tick(time.Now()); s.Terminal() {
		return p.Err()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Cancel()
			p.Dispose()
			return ctx.Err()
		case now := <-t.C:
			if s := p.Tick(now); s.Terminal() {
				return p.Err()
			}
		}
	}
}
