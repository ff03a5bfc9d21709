package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 7), uint8(y * 5), uint8(x ^ y), 255})
		}
	}
	return img
}

func TestWriteImageRetriesWithSanitizedPath(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "shots", "farm\x00day.png")
	var ctr counters
	got, err := writeImage("farm", testImage(8, 8), bad, DefaultConfig(), &ctr)
	if err != nil {
		t.Fatalf("writeImage: %v", err)
	}
	want := SanitizePath(bad)
	if got != want {
		t.Fatalf("wrote %q, want %q", got, want)
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("sanitized file missing: %v", err)
	}
	if n := ctr.writes.Load(); n != 2 {
		t.Fatalf("writes = %d, want 2", n)
	}
}

func TestWriteImageGivesUpAfterOneRetry(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var ctr counters
	_, err := writeImage("blocked", testImage(4, 4), filepath.Join(blocker, "out.png"), DefaultConfig(), &ctr)
	if err == nil {
		t.Fatalf("writeImage under a regular file succeeded")
	}
	if n := ctr.writes.Load(); n != 2 {
		t.Fatalf("writes = %d, want 2", n)
	}
}

func TestEncoderForExtension(t *testing.T) {
	dir := t.TempDir()
	src := testImage(16, 9)
	tests := []struct {
		name   string
		decode func(f *os.File) (image.Image, error)
	}{
		{"a.png", func(f *os.File) (image.Image, error) { return png.Decode(f) }},
		{"a.TIFF", func(f *os.File) (image.Image, error) { return tiff.Decode(f) }},
		{"a.bmp", func(f *os.File) (image.Image, error) { return bmp.Decode(f) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := writeFile(src, path, DefaultConfig(), nil); err != nil {
				t.Fatalf("writeFile: %v", err)
			}
			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			img, err := tt.decode(f)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if img.Bounds().Size() != src.Bounds().Size() {
				t.Fatalf("decoded size %v", img.Bounds())
			}
			r, g, b, _ := img.At(3, 2).RGBA()
			want := src.RGBAAt(3, 2)
			if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
				t.Fatalf("pixel (3,2) = %d,%d,%d want %v", r>>8, g>>8, b>>8, want)
			}
		})
	}
}

func TestWriteTaskPollAndAbort(t *testing.T) {
	dir := t.TempDir()
	state := newStateCell()
	state.v.Store(int32(Writing))
	task := startWrite("poll", testImage(32, 32), filepath.Join(dir, "p.png"), DefaultConfig(), state, &counters{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.wait(ctx); err != nil {
		t.Fatalf("write: %v", err)
	}
	if done, err := task.Poll(); !done || err != nil {
		t.Fatalf("Poll = %v, %v", done, err)
	}

	state.fail(ErrAborted)
	task = startWrite("abort", testImage(32, 32), filepath.Join(dir, "q.png"), DefaultConfig(), state, &counters{})
	if err := task.wait(ctx); err != ErrAborted {
		t.Fatalf("wait = %v, want ErrAborted", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "q.png")); !os.IsNotExist(err) {
		t.Fatalf("aborted write left a file: %v", err)
	}
}
