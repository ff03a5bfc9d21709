package main

import (
	"context"
	"flag"
	"image"
	"log"
	"os"
	"os/signal"
	"syscall"

	"worldshot/capture"
	"worldshot/world"

	"github.com/hajimehoshi/ebiten/v2"
	clipboard "golang.design/x/clipboard"
)

var (
	doDebug bool
	silent  bool
)

func main() {
	batchPath := flag.String("batch", "", "capture the maps listed in a JSON file without opening a window")
	headless := flag.Bool("headless", false, "capture one map without opening a window and exit")
	out := flag.String("out", "", "output file for -headless")
	mapW := flag.Int("width", 0, "map width in tiles (0 uses the settings)")
	mapH := flag.Int("height", 0, "map height in tiles (0 uses the settings)")
	seed := flag.Int64("seed", 0, "map seed (0 uses the settings)")
	scale := flag.Float64("scale", 0, "screenshot scale (0 uses the settings)")
	chunk := flag.Int("chunk", 0, "chunk size in pixels (0 uses the settings)")
	workers := flag.Int("workers", 0, "concurrent batch captures (0 uses the settings)")
	forceChunked := flag.Bool("forceChunked", false, "never use the single-pass capture")
	flag.BoolVar(&doDebug, "debug", false, "verbose/debug logging")
	flag.BoolVar(&silent, "silent", false, "do not echo log lines to the console overlay")
	flag.Parse()

	loadSettings()
	if *mapW > 0 {
		gs.MapWidth = *mapW
	}
	if *mapH > 0 {
		gs.MapHeight = *mapH
	}
	if *seed != 0 {
		gs.Seed = *seed
	}
	if *scale > 0 {
		gs.CaptureScale = *scale
	}
	if *chunk > 0 {
		gs.ChunkSize = *chunk
	}
	if *forceChunked {
		gs.ForceChunked = true
	}
	if *workers > 0 {
		gs.BatchWorkers = *workers
	}

	setupLogging(doDebug)
	capture.Logf = logError
	if doDebug {
		capture.Debugf = logDebug
	}
	loadStats()
	defer saveStats()

	if *batchPath != "" || *headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		jobs := []batchJob{{Name: gs.MapName, Seed: gs.Seed, Output: *out}}
		if *batchPath != "" {
			var err error
			if jobs, err = loadBatch(*batchPath); err != nil {
				log.Fatalf("load batch: %v", err)
			}
		}
		if err := runBatch(ctx, jobs, gs.BatchWorkers); err != nil {
			logError("batch: %v", err)
			saveStats()
			os.Exit(1)
		}
		return
	}

	if err := clipboard.Init(); err != nil {
		log.Printf("clipboard init: %v", err)
	} else {
		clipboardReady = true
	}
	initSoundContext()

	if gs.WindowWidth < 512 {
		gs.WindowWidth = initialWindowW
	}
	if gs.WindowHeight < 384 {
		gs.WindowHeight = initialWindowH
	}
	ebiten.SetWindowSize(gs.WindowWidth, gs.WindowHeight)
	ebiten.SetWindowTitle("worldshot")

	m := world.Generate(gs.MapName, gs.MapWidth, gs.MapHeight, gs.TileSize, gs.Seed)
	ebiten.SetWindowIcon([]image.Image{m.Atlas().Tile(world.Grass, 0)})

	defer func() {
		if r := recover(); r != nil {
			logPanic(r)
		}
	}()
	runGame(newGame(m))
}
