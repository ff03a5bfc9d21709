package main

import (
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"worldshot/capture"
)

const SETTINGS_VERSION = 1

var gs settings = gsdef

// settingsLoaded reports whether settings were successfully loaded from disk.
var settingsLoaded bool

var gsdef settings = settings{
	Version: SETTINGS_VERSION,

	WindowWidth:  1280,
	WindowHeight: 720,
	MapName:      "overworld",
	MapWidth:     256,
	MapHeight:    128,
	TileSize:     32,
	Seed:         1,
	CameraSpeed:  8,
	DayLength:    240,

	ScreenshotDir:   "Screenshots",
	ScreenshotName:  "{map}-{name}-{date}-{time}.png",
	CaptureScale:    1,
	ChunkSize:       2048,
	ChunksPerTick:   1,
	QueueDepth:      4,
	MaxSurfaceSize:  4096,
	MaxCanvasMB:     2048,
	PollIntervalMS:  10,
	WriteRetries:    1,
	PNGCompression:  "default",
	CaptureHour:     -1,
	CaptureCooldown: 0.5,

	FlashOnCapture: true,
	ShutterSound:   true,
	ShutterVolume:  0.5,
	Notifications:  true,
	BatchWorkers:   0,
}

type settings struct {
	Version int

	WindowWidth  int
	WindowHeight int
	Fullscreen   bool

	MapName     string
	MapWidth    int
	MapHeight   int
	TileSize    int
	Seed        int64
	CameraSpeed float64
	// DayLength is the length of one in-game day in seconds.
	DayLength float64

	ScreenshotDir  string
	ScreenshotName string
	CaptureScale   float64
	ChunkSize      int
	ChunksPerTick  int
	QueueDepth     int
	MaxSurfaceSize int
	MaxCanvasMB    int
	PollIntervalMS int
	WriteRetries   int
	PNGCompression string
	ForceChunked   bool
	// CaptureHour pins the lighting of captures to an hour of the day. A
	// negative value captures at the current game hour.
	CaptureHour float64
	// CaptureCooldown is the minimum number of seconds between two hotkey
	// captures.
	CaptureCooldown float64

	FlashOnCapture         bool
	ShutterSound           bool
	ShutterVolume          float64
	Notifications          bool
	OpenFolderAfterCapture bool
	CopyPathToClipboard    bool
	BatchWorkers           int

	ConsoleTimestamps bool
	TimestampFormat   string
	// PotatoComputer keeps render targets out of the texture atlas.
	PotatoComputer bool
}

var (
	settingsDirty    bool
	lastSettingsSave = time.Now()
)

const settingsFile = "settings.json"

func loadSettings() bool {
	path := filepath.Join(dataDirPath, settingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		gs = gsdef
		settingsLoaded = false
		return false
	}

	tmp := gsdef
	if err := json.Unmarshal(data, &tmp); err != nil {
		gs = gsdef
		settingsLoaded = false
		return false
	}
	if tmp.Version != SETTINGS_VERSION {
		gs = gsdef
		settingsLoaded = false
		return false
	}
	gs = tmp
	settingsLoaded = true

	if gs.CaptureScale <= 0 || gs.CaptureScale > 8 {
		gs.CaptureScale = gsdef.CaptureScale
	}
	if gs.TileSize <= 0 {
		gs.TileSize = gsdef.TileSize
	}
	if gs.MapWidth <= 0 || gs.MapHeight <= 0 {
		gs.MapWidth, gs.MapHeight = gsdef.MapWidth, gsdef.MapHeight
	}
	if gs.MaxSurfaceSize < 256 {
		gs.MaxSurfaceSize = gsdef.MaxSurfaceSize
	}
	if gs.ShutterVolume < 0 || gs.ShutterVolume > 1 {
		gs.ShutterVolume = gsdef.ShutterVolume
	}
	if gs.DayLength <= 0 {
		gs.DayLength = gsdef.DayLength
	}
	if gs.ScreenshotName == "" {
		gs.ScreenshotName = gsdef.ScreenshotName
	}
	return settingsLoaded
}

func saveSettings() {
	data, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		logError("save settings: %v", err)
		return
	}
	if err := os.MkdirAll(dataDirPath, 0o755); err != nil {
		logError("save settings: %v", err)
		return
	}
	path := filepath.Join(dataDirPath, settingsFile)
	if err := os.WriteFile(path+".tmp", data, 0644); err != nil {
		logError("save settings: %v", err)
		return
	}

	os.Rename(path+".tmp", path)
	settingsDirty = false
	lastSettingsSave = time.Now()
}

// maybeSaveSettings writes dirty settings at most once every few seconds.
func maybeSaveSettings() {
	if settingsDirty && time.Since(lastSettingsSave) > 5*time.Second {
		saveSettings()
	}
}

// captureConfig maps the user settings onto a capture configuration.
func (s settings) captureConfig() capture.Config {
	cfg := capture.DefaultConfig()
	if s.ChunkSize > 0 {
		cfg.ChunkSize = s.ChunkSize
	}
	if s.ChunksPerTick >= 0 {
		cfg.ChunksPerTick = s.ChunksPerTick
	}
	if s.QueueDepth > 0 {
		cfg.QueueDepth = s.QueueDepth
	}
	if s.PollIntervalMS > 0 {
		cfg.PollInterval = time.Duration(s.PollIntervalMS) * time.Millisecond
	}
	if s.WriteRetries >= 0 {
		cfg.WriteRetries = s.WriteRetries
	}
	if s.MaxCanvasMB > 0 {
		cfg.MaxCanvasBytes = int64(s.MaxCanvasMB) << 20
	}
	cfg.Compression = pngCompression(s.PNGCompression)
	cfg.ForceChunked = s.ForceChunked
	cfg.PanicOnInvariant = doDebug
	return cfg
}

func pngCompression(name string) png.CompressionLevel {
	switch strings.ToLower(name) {
	case "none":
		return png.NoCompression
	case "speed", "fast":
		return png.BestSpeed
	case "best":
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}
