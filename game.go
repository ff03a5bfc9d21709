package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"time"

	"worldshot/capture"
	"worldshot/world"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/time/rate"
)

const (
	initialWindowW = 1280
	initialWindowH = 720

	hudFontSize = 13
	flashDecay  = 4.0
)

// Game is the ebiten.Game of the viewer. It owns the world, the camera and
// the running screenshots.
type Game struct {
	world   *world.Map
	loc     capture.Location
	host    *ebitenHost
	shooter *shooter

	worldRT     *ebiten.Image
	screenLight *ebitenLightmap

	limiter    *rate.Limiter
	shotSeq    int
	flash      float64
	lastUpdate time.Time
	folderPick chan string

	face *text.GoTextFace
}

func newGame(m *world.Map) *Game {
	g := &Game{
		world:       m,
		loc:         registerWorld(m),
		host:        newEbitenHost(gs.MaxSurfaceSize),
		screenLight: &ebitenLightmap{},
		folderPick:  make(chan string, 1),
	}
	cooldown := time.Duration(gs.CaptureCooldown * float64(time.Second))
	if cooldown <= 0 {
		g.limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		g.limiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}
	g.shooter = newShooter(g.host, func() capture.Config { return gs.captureConfig() })
	g.shooter.onDone = screenshotFinished
	g.shooter.onSaved = func(*shot) { g.acknowledge() }

	if src, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF)); err == nil {
		g.face = &text.GoTextFace{Source: src, Size: hudFontSize}
	} else {
		log.Printf("hud font: %v", err)
	}

	// Start centred on the map.
	sz := m.PixelSize()
	vp := image.Rect(0, 0, gs.WindowWidth, gs.WindowHeight)
	g.host.SetViewport(vp.Add(image.Pt((sz.X-vp.Dx())/2, (sz.Y-vp.Dy())/2)))
	g.host.SetLightmap(g.screenLight)
	return g
}

func (g *Game) Update() error {
	now := time.Now()
	dt := 1.0 / 60
	if !g.lastUpdate.IsZero() {
		dt = now.Sub(g.lastUpdate).Seconds()
	}
	g.lastUpdate = now
	g.host.frame++

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) && g.shooter.running() > 0 {
		g.shooter.cancelAll()
	}
	g.handleCaptureKeys(now)
	g.moveCamera()

	select {
	case dir := <-g.folderPick:
		gs.ScreenshotDir = dir
		settingsDirty = true
		logInfo("screenshots go to %s", dir)
	default:
	}

	g.shooter.tick(now)

	if g.flash > 0 {
		g.flash -= dt * flashDecay
	}
	maybeSaveSettings()
	return nil
}

func (g *Game) handleCaptureKeys(now time.Time) {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyF12):
		g.trigger(g.mapRequest(now), now)
	case inpututil.IsKeyJustPressed(ebiten.KeyF10):
		g.trigger(g.viewRequest(now), now)
	case inpututil.IsKeyJustPressed(ebiten.KeyF9):
		g.toggleRegion()
	case inpututil.IsKeyJustPressed(ebiten.KeyF8):
		g.shooter.setEvent(!g.shooter.inEvent, now)
		if g.shooter.inEvent {
			consoleMessage("event started")
		} else {
			consoleMessage("event ended")
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyF11):
		g.chooseFolder()
	case inpututil.IsKeyJustPressed(ebiten.KeyF7):
		dir := screenshotDir()
		if err := openFolder(dir); err != nil {
			logWarn("open %s: %v", dir, err)
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyEqual):
		g.setCaptureScale(gs.CaptureScale + 0.25)
	case inpututil.IsKeyJustPressed(ebiten.KeyMinus):
		g.setCaptureScale(gs.CaptureScale - 0.25)
	}
}

// acknowledge flashes the screen and plays the shutter for a saved
// screenshot.
func (g *Game) acknowledge() {
	if gs.FlashOnCapture {
		g.flash = 1
	}
	playShutter()
}

// trigger starts req unless the hotkey is pressed faster than the cooldown.
func (g *Game) trigger(req capture.Request, now time.Time) {
	if !g.limiter.AllowN(now, 1) {
		consoleMessage("screenshot: slow down")
		return
	}
	if err := g.shooter.request(req, now); err != nil {
		if errors.Is(err, errDuplicateOutput) {
			logWarn("screenshot %q: %v", req.Name, err)
			return
		}
		statCaptureFailed()
		logError("screenshot %q: %v", req.Name, err)
	}
}

// toggleRegion limits map screenshots to the middle of the map and back.
func (g *Game) toggleRegion() {
	if g.world.Region != nil {
		g.world.ClearRegion()
		consoleMessage("screenshot region: whole map")
		return
	}
	w, h := g.world.Width, g.world.Height
	g.world.SetRegion(w/4, h/4, w-w/4, h-h/4)
	consoleMessage(fmt.Sprintf("screenshot region: tiles %v", g.world.Bounds()))
}

func (g *Game) setCaptureScale(s float64) {
	if s < 0.25 || s > 8 {
		return
	}
	gs.CaptureScale = s
	settingsDirty = true
	consoleMessage(fmt.Sprintf("screenshot scale %.2f", s))
}

func (g *Game) chooseFolder() {
	start := screenshotDir()
	go func() {
		dir, err := pickScreenshotDir(start)
		if err != nil {
			if !errors.Is(err, errFolderDialogCancelled) {
				log.Printf("folder dialog: %v", err)
			}
			return
		}
		select {
		case g.folderPick <- dir:
		default:
		}
	}()
}

func (g *Game) moveCamera() {
	speed := int(gs.CameraSpeed)
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		speed *= 4
	}
	var d image.Point
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) || ebiten.IsKeyPressed(ebiten.KeyA) {
		d.X -= speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) || ebiten.IsKeyPressed(ebiten.KeyD) {
		d.X += speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) || ebiten.IsKeyPressed(ebiten.KeyW) {
		d.Y -= speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) || ebiten.IsKeyPressed(ebiten.KeyS) {
		d.Y += speed
	}
	if d != (image.Point{}) {
		g.host.SetViewport(g.host.Viewport().Add(d))
	}
}

func (g *Game) ensureWorldRT(w, h int) *ebiten.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	g.worldRT = growImage(g.worldRT, w, h)
	g.screenLight.img = growImage(g.screenLight.img, w, h)
	return g.worldRT.SubImage(image.Rect(0, 0, w, h)).(*ebiten.Image)
}

func (g *Game) Draw(screen *ebiten.Image) {
	now := time.Now()
	sb := screen.Bounds()
	vp := g.host.Viewport()
	vp.Max = vp.Min.Add(sb.Size())
	g.host.SetViewport(vp)

	dst := g.ensureWorldRT(sb.Dx(), sb.Dy())
	drawScene(dst, g.screenLight.img, g.world, vp, g.host.phase(now), gameHour(now))
	screen.DrawImage(dst, nil)

	if r := g.world.Bounds(); g.world.Region != nil {
		r = r.Sub(vp.Min)
		vector.StrokeRect(screen, float32(r.Min.X), float32(r.Min.Y), float32(r.Dx()), float32(r.Dy()), 2,
			color.RGBA{255, 220, 0, 255}, false)
	}
	if g.flash > 0 {
		vector.FillRect(screen, 0, 0, float32(sb.Dx()), float32(sb.Dy()), flashColor(g.flash), false)
	}
	g.drawHUD(screen, now)
}

func (g *Game) drawHUD(screen *ebiten.Image, now time.Time) {
	h := gameHour(now)
	lines := []string{
		fmt.Sprintf("%s %02d:%02d  scale %.2f  %s", g.world.Name, int(h), int(h*60)%60, gs.CaptureScale, statsSummary()),
	}
	lines = append(lines, g.shooter.status()...)
	lines = append(lines, hudLines(now)...)

	if g.face == nil {
		for i, l := range lines {
			ebitenutil.DebugPrintAt(screen, l, 8, 8+i*16)
		}
		return
	}
	lh := g.face.Metrics().HAscent + g.face.Metrics().HDescent + 2
	op := &text.DrawOptions{}
	for i, l := range lines {
		op.GeoM.Reset()
		op.GeoM.Translate(9, 9+float64(i)*lh)
		op.ColorScale.Reset()
		op.ColorScale.ScaleWithColor(color.Black)
		text.Draw(screen, l, g.face, op)
		op.GeoM.Translate(-1, -1)
		op.ColorScale.Reset()
		text.Draw(screen, l, g.face, op)
	}
	if doDebug {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("TPS %.0f FPS %.0f", ebiten.ActualTPS(), ebiten.ActualFPS()),
			8, screen.Bounds().Dy()-20)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth > 512 && outsideHeight > 384 {
		if gs.WindowWidth != outsideWidth || gs.WindowHeight != outsideHeight {
			gs.WindowWidth = outsideWidth
			gs.WindowHeight = outsideHeight
			settingsDirty = true
		}
	}
	return outsideWidth, outsideHeight
}

func runGame(g *Game) {
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(ebiten.SyncWithFPS)
	if gs.Fullscreen {
		ebiten.SetFullscreen(true)
	}
	op := &ebiten.RunGameOptions{ScreenTransparent: false}
	if err := ebiten.RunGameWithOptions(g, op); err != nil {
		log.Printf("ebiten: %v", err)
	}
	g.shooter.cancelAll()
	saveSettings()
}
