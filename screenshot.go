package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"worldshot/capture"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/skratchdot/open-golang/open"
	clipboard "golang.design/x/clipboard"
)

var (
	errDuplicateOutput = errors.New("a screenshot to this file is already running")

	shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

	// clipboardReady is set once clipboard.Init succeeded.
	clipboardReady bool
)

// shot is one running screenshot.
type shot struct {
	p       capture.Pipeline
	req     capture.Request
	started time.Time
}

// shooter owns every running screenshot of a host and ticks them from the
// game loop.
type shooter struct {
	host     capture.Host
	cfg      func() capture.Config
	shots    []*shot
	deferred []capture.Request
	inEvent  bool

	// onDone runs when a pipeline reached a terminal state, onSaved after
	// it when the file was written. Both run on the game loop.
	onDone  func(*shot, time.Time)
	onSaved func(*shot)
}

func newShooter(h capture.Host, cfg func() capture.Config) *shooter {
	return &shooter{host: h, cfg: cfg}
}

// screenshotDir is the folder relative output names are resolved against.
func screenshotDir() string {
	dir := gs.ScreenshotDir
	if dir == "" {
		dir = gsdef.ScreenshotDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(dataDirPath, dir)
	}
	return dir
}

// outputPath expands the {name}, {map}, {date}, {time} and {seq} tokens of
// template. A template without extension gets ".png".
func outputPath(dir, template, name string, loc capture.Location, now time.Time, seq int) string {
	r := strings.NewReplacer(
		"{name}", name,
		"{map}", string(loc),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
		"{seq}", fmt.Sprintf("%03d", seq),
	)
	out := r.Replace(template)
	if filepath.Ext(out) == "" {
		out += ".png"
	}
	if !filepath.IsAbs(out) && dir != "" {
		out = filepath.Join(dir, out)
	}
	return out
}

// request starts req, or parks it while a scripted event is running and
// req may not fire during one.
func (s *shooter) request(req capture.Request, now time.Time) error {
	if s.inEvent && !req.FireDuringEvent {
		s.deferred = append(s.deferred, req)
		logDebug("screenshot %q deferred until the event ends", req.Name)
		return nil
	}
	return s.start(req, now)
}

func (s *shooter) start(req capture.Request, now time.Time) error {
	for _, sh := range s.shots {
		if sh.req.Output == req.Output {
			return fmt.Errorf("%s: %w", req.Output, errDuplicateOutput)
		}
	}
	p, err := capture.Start(s.host, req, s.cfg())
	if err != nil {
		return err
	}
	s.shots = append(s.shots, &shot{p: p, req: req, started: now})
	return nil
}

// setEvent marks a scripted event as running. Ending it releases the
// deferred screenshots.
func (s *shooter) setEvent(on bool, now time.Time) {
	s.inEvent = on
	if on {
		return
	}
	pending := s.deferred
	s.deferred = nil
	for _, req := range pending {
		if err := s.start(req, now); err != nil {
			logError("screenshot %q: %v", req.Name, err)
		}
	}
}

// tick advances every running screenshot and retires finished ones.
func (s *shooter) tick(now time.Time) {
	kept := s.shots[:0]
	for _, sh := range s.shots {
		if st := sh.p.Tick(now); !st.Terminal() {
			kept = append(kept, sh)
			continue
		}
		if s.onDone != nil {
			s.onDone(sh, now)
		}
		if sh.p.State() == capture.Complete && s.onSaved != nil {
			s.onSaved(sh)
		}
		sh.p.Dispose()
	}
	for i := len(kept); i < len(s.shots); i++ {
		s.shots[i] = nil
	}
	s.shots = kept
}

// cancelAll aborts every running screenshot. Partial files are removed by
// the pipelines themselves.
func (s *shooter) cancelAll() {
	for _, sh := range s.shots {
		sh.p.Cancel()
		sh.p.Dispose()
	}
	s.shots = nil
	s.deferred = nil
}

func (s *shooter) running() int { return len(s.shots) }

// status describes the running screenshots for the HUD.
func (s *shooter) status() []string {
	var out []string
	for _, sh := range s.shots {
		st := sh.p.Stats()
		out = append(out, fmt.Sprintf("%s: %s %d/%d chunks", sh.req.Name, sh.p.State(), st.Composited, st.Tiles))
	}
	if n := len(s.deferred); n > 0 {
		out = append(out, fmt.Sprintf("%d screenshot(s) waiting for the event to end", n))
	}
	return out
}

// screenshotSummary is the log line of a finished screenshot.
func screenshotSummary(sh *shot, size uint64, now time.Time) string {
	sz := sh.p.Size()
	dur := durafmt.Parse(now.Sub(sh.started)).LimitFirstN(2).Format(shortUnits)
	msg := fmt.Sprintf("saved %s (%dx%d, %s) in %s", sh.p.Path(), sz.X, sz.Y, humanize.IBytes(size), dur)
	if sh.p.Scale() != sh.req.Scale {
		msg += fmt.Sprintf(", scale lowered to %.2f", sh.p.Scale())
	}
	return msg
}

// screenshotFinished gives the user feedback on a finished screenshot.
func screenshotFinished(sh *shot, now time.Time) {
	if sh.p.State() != capture.Complete {
		statCaptureFailed()
		err := sh.p.Err()
		if errors.Is(err, capture.ErrAborted) {
			logWarn("screenshot %q cancelled", sh.req.Name)
			return
		}
		logError("screenshot %q failed: %v", sh.req.Name, err)
		if gs.Notifications {
			notifyDesktop("Screenshot failed", err.Error(), "")
		}
		return
	}
	path := sh.p.Path()
	size := statCaptureSaved(path, now)
	logInfo("%s", screenshotSummary(sh, size, now))
	notifyScreenshot(path, humanize.IBytes(size))
	if gs.CopyPathToClipboard && clipboardReady {
		clipboard.Write(clipboard.FmtText, []byte(path))
	}
	if gs.OpenFolderAfterCapture {
		if err := openFolder(filepath.Dir(path)); err != nil {
			logWarn("open %s: %v", filepath.Dir(path), err)
		}
	}
	saveStats()
}

// openFolder shows dir in the system file browser, creating it first.
func openFolder(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return open.Start(dir)
}

// mapRequest captures the annotated region of the current map, or all of it.
func (g *Game) mapRequest(now time.Time) capture.Request {
	return g.newRequest("map", g.world.Bounds(), true, now)
}

// viewRequest captures what is currently on screen. It waits for scripted
// events to end.
func (g *Game) viewRequest(now time.Time) capture.Request {
	return g.newRequest("view", g.host.Viewport(), false, now)
}

func (g *Game) newRequest(name string, region image.Rectangle, duringEvent bool, now time.Time) capture.Request {
	g.shotSeq++
	return capture.Request{
		Name:            name,
		Output:          outputPath(screenshotDir(), gs.ScreenshotName, name, g.loc, now, g.shotSeq),
		Scale:           gs.CaptureScale,
		Region:          region,
		Location:        g.loc,
		FireDuringEvent: duringEvent,
	}
}
