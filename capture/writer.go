package capture

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// WriteTask is the handle of an asynchronous disk write.
type WriteTask struct {
	done chan struct{}
	path string
	err  error
}

// Poll reports whether the write has finished and, if so, its result. It
// never blocks.
func (t *WriteTask) Poll() (bool, error) {
	select {
	case <-t.done:
		return true, t.err
	default:
		return false, nil
	}
}

// Path is the file actually written. It is only meaningful after Poll
// reported completion.
func (t *WriteTask) Path() string {
	select {
	case <-t.done:
		return t.path
	default:
		return ""
	}
}

// wait blocks until the write finishes or ctx is done.
func (t *WriteTask) wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startWrite encodes img to path on its own goroutine. If the capture is
// aborted while the file is being written the file is removed again.
func startWrite(name string, img image.Image, path string, cfg Config, state *stateCell, ctr *counters) *WriteTask {
	t := &WriteTask{done: make(chan struct{}), path: path}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("write %s: %v", t.path, r)
				logPhase(name, "write", t.path, t.err)
			}
		}()
		t.path, t.err = writeImage(name, img, path, cfg, ctr)
		if t.err == nil && state != nil && state.load() == Error {
			os.Remove(t.path)
			t.err = ErrAborted
		}
	}()
	return t
}

// writeImage writes img to path. On failure the path is sanitized and the
// write retried cfg.WriteRetries times. It returns the path last tried.
func writeImage(name string, img image.Image, path string, cfg Config, ctr *counters) (string, error) {
	err := writeFile(img, path, cfg, ctr)
	for i := 0; err != nil && i < cfg.WriteRetries; i++ {
		clean := SanitizePath(path)
		Logf("capture: %q write %s failed: %v; retrying as %s", name, path, err, clean)
		path = clean
		err = writeFile(img, path, cfg, ctr)
	}
	if err != nil {
		err = fmt.Errorf("write %s: %w", path, err)
		logPhase(name, "write", path, err)
		return path, err
	}
	return path, nil
}

func writeFile(img image.Image, path string, cfg Config, ctr *counters) (err error) {
	if ctr != nil {
		ctr.writes.Add(1)
	}
	start := time.Now()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	w := bufio.NewWriterSize(f, 1<<20)
	if err := encoderFor(path, cfg)(w, img); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	Debugf("capture: wrote %s in %v", path, time.Since(start))
	return nil
}

type encodeFunc func(io.Writer, image.Image) error

func encoderFor(path string, cfg Config) encodeFunc {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}
	case ".bmp":
		return bmp.Encode
	}
	enc := &png.Encoder{CompressionLevel: cfg.Compression}
	return enc.Encode
}
