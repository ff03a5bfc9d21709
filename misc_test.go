package main

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestMessageLogRecent(t *testing.T) {
	l := messageLog{max: 3}
	for _, m := range []string{"a", "", "b", "c", "d"} {
		l.Add(m)
	}
	got := l.Entries("", false)
	if len(got) != 3 || got[0] != "b" || got[2] != "d" {
		t.Fatalf("Entries = %q", got)
	}

	now := time.Now()
	recent := l.Recent(2, time.Minute, now)
	if len(recent) != 2 || recent[0].Text != "c" || recent[1].Text != "d" {
		t.Fatalf("Recent = %+v", recent)
	}
	if old := l.Recent(5, time.Minute, now.Add(2*time.Minute)); len(old) != 0 {
		t.Fatalf("Recent returned stale entries %+v", old)
	}
}

func TestGameHour(t *testing.T) {
	withTestSettings(t)
	gs.DayLength = 240
	old := clockStart
	t.Cleanup(func() { clockStart = old })
	clockStart = time.Unix(1000, 0)

	tests := []struct {
		after time.Duration
		want  float64
	}{
		{0, 6},
		{60 * time.Second, 12},
		{180 * time.Second, 0},
		{240 * time.Second, 6},
	}
	for _, tt := range tests {
		if got := gameHour(clockStart.Add(tt.after)); got != tt.want {
			t.Errorf("gameHour(+%v) = %v, want %v", tt.after, got, tt.want)
		}
	}

	gs.CaptureHour = 27
	if got := captureHour(clockStart); got != 3 {
		t.Errorf("captureHour pinned = %v, want 3", got)
	}
	gs.CaptureHour = -1
	if got := captureHour(clockStart.Add(60 * time.Second)); got != 12 {
		t.Errorf("captureHour live = %v, want 12", got)
	}
}

func TestSynthShutter(t *testing.T) {
	pcm := synthShutter(sampleRate, 1)
	if len(pcm)%4 != 0 || len(pcm) == 0 {
		t.Fatalf("pcm length %d is not whole stereo frames", len(pcm))
	}
	frames := len(pcm) / 4
	energy := func(from, to int) int {
		sum := 0
		for i := from; i < to; i++ {
			sum += abs16(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		}
		return sum
	}
	tenth := frames / 10
	if head, tail := energy(0, tenth), energy(frames-tenth, frames); tail >= head {
		t.Fatalf("click does not decay: head %d tail %d", head, tail)
	}
	for i := 0; i < frames; i++ {
		l := binary.LittleEndian.Uint16(pcm[i*4:])
		r := binary.LittleEndian.Uint16(pcm[i*4+2:])
		if l != r {
			t.Fatalf("frame %d: channels differ", i)
		}
	}
}

func abs16(v int16) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}
