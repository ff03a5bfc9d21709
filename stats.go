package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// captureStats is the persisted screenshot history.
type captureStats struct {
	Captures  int       `json:"captures"`
	Failures  int       `json:"failures"`
	Bytes     uint64    `json:"bytes"`
	LastPath  string    `json:"last_path"`
	LastTaken time.Time `json:"last_taken"`
}

const statsFile = "stats.json"

// dataDirPath holds the absolute path to the directory for settings and
// stats. On macOS the path resolves to the app's container directory so the
// program can operate inside the sandbox. On other platforms the path is
// resolved relative to the executable regardless of the current working
// directory.
var dataDirPath = func() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			if filepath.Base(home) == "Data" && filepath.Base(filepath.Dir(home)) == "com.worldshot.app" {
				home = filepath.Dir(home)
			} else {
				home = filepath.Join(home, "Library", "Containers", "com.worldshot.app")
			}
			_ = os.MkdirAll(home, 0o755)
			return home
		}
	}
	if exe, err := os.Executable(); err == nil {
		if dir, err := filepath.Abs(filepath.Dir(exe)); err == nil {
			return filepath.Join(dir, "data")
		}
	}
	// Fallback to relative path.
	return "data"
}()

var (
	stats      captureStats
	statsMu    sync.Mutex
	statsDirty bool
)

func loadStats() {
	statsMu.Lock()
	defer statsMu.Unlock()
	stats = captureStats{}
	path := filepath.Join(dataDirPath, statsFile)
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &stats); err != nil {
			log.Printf("load stats: %v", err)
		}
	}
}

func saveStats() {
	statsMu.Lock()
	if !statsDirty {
		statsMu.Unlock()
		return
	}
	statsDirty = false
	data, err := json.MarshalIndent(stats, "", "  ")
	statsMu.Unlock()
	if err != nil {
		log.Printf("save stats: %v", err)
		return
	}
	if err := os.MkdirAll(dataDirPath, 0o755); err != nil {
		log.Printf("save stats: %v", err)
		return
	}
	path := filepath.Join(dataDirPath, statsFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("save stats: %v", err)
	}
}

// statCaptureSaved records a written screenshot and returns its size.
func statCaptureSaved(path string, when time.Time) uint64 {
	var size uint64
	if fi, err := os.Stat(path); err == nil {
		size = uint64(fi.Size())
	}
	statsMu.Lock()
	stats.Captures++
	stats.Bytes += size
	stats.LastPath = path
	stats.LastTaken = when
	statsDirty = true
	statsMu.Unlock()
	return size
}

func statCaptureFailed() {
	statsMu.Lock()
	stats.Failures++
	statsDirty = true
	statsMu.Unlock()
}

// statsSummary is the one-line history shown on the HUD.
func statsSummary() string {
	statsMu.Lock()
	defer statsMu.Unlock()
	if stats.Captures == 0 {
		return "no screenshots yet"
	}
	return humanize.Comma(int64(stats.Captures)) + " screenshots, " +
		humanize.IBytes(stats.Bytes) + ", last " + humanize.Time(stats.LastTaken)
}
