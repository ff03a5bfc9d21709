package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestDataDirPathRelativeToExecutable(t *testing.T) {
	if runtime.GOOS == "darwin" {
		if !strings.Contains(dataDirPath, "com.worldshot.app") {
			t.Fatalf("dataDirPath = %q, want the app container", dataDirPath)
		}
		return
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	want := filepath.Join(filepath.Dir(exe), "data")
	if dataDirPath != want {
		t.Fatalf("dataDirPath = %q, want %q", dataDirPath, want)
	}
}

func TestStatsPersistInDataDir(t *testing.T) {
	dir := withTestSettings(t)
	statsMu.Lock()
	old := stats
	stats = captureStats{}
	statsMu.Unlock()
	t.Cleanup(func() {
		statsMu.Lock()
		stats = old
		statsMu.Unlock()
	})

	shot := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(shot, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if n := statCaptureSaved(shot, when); n != 2048 {
		t.Fatalf("statCaptureSaved = %d, want 2048", n)
	}
	statCaptureFailed()
	saveStats()

	loadStats()
	statsMu.Lock()
	got := stats
	statsMu.Unlock()
	if got.Captures != 1 || got.Failures != 1 || got.Bytes != 2048 || got.LastPath != shot || !got.LastTaken.Equal(when) {
		t.Fatalf("stats = %+v", got)
	}
	if s := statsSummary(); !strings.Contains(s, "1 screenshots") || !strings.Contains(s, "2.0 KiB") {
		t.Fatalf("statsSummary = %q", s)
	}
}
