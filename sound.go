package main

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

const (
	sampleRate = 44100
	maxSounds  = 8
)

var (
	audioContext *audio.Context

	soundMu      sync.Mutex
	soundPlayers = make(map[*audio.Player]struct{})

	shutterOnce sync.Once
	shutterPCM  []byte
)

// initSoundContext initializes the global audio context.
func initSoundContext() {
	audioContext = audio.NewContext(sampleRate)
}

// synthShutter renders a short camera click as 16-bit stereo PCM: a
// decaying noise burst followed by a second, quieter one.
func synthShutter(rate int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	n := rate * 90 / 1000
	second := rate * 45 / 1000
	pcm := make([]byte, n*4)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(rate)
		env := math.Exp(-t * 90)
		if i >= second {
			env += 0.6 * math.Exp(-float64(i-second)/float64(rate)*120)
		}
		v := (r.Float64()*2 - 1) * env * 0.8
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := uint16(int16(v * math.MaxInt16))
		binary.LittleEndian.PutUint16(pcm[i*4:], s)
		binary.LittleEndian.PutUint16(pcm[i*4+2:], s)
	}
	return pcm
}

// playShutter plays the capture click if enabled.
func playShutter() {
	if !gs.ShutterSound || audioContext == nil {
		return
	}
	shutterOnce.Do(func() {
		shutterPCM = synthShutter(sampleRate, time.Now().UnixNano())
	})

	p := audioContext.NewPlayerFromBytes(shutterPCM)
	p.SetVolume(gs.ShutterVolume)

	soundMu.Lock()
	for sp := range soundPlayers {
		if !sp.IsPlaying() {
			sp.Close()
			delete(soundPlayers, sp)
		}
	}
	if maxSounds > 0 && len(soundPlayers) >= maxSounds {
		soundMu.Unlock()
		logDebug("playShutter too many sound players (%d)", len(soundPlayers))
		p.Close()
		return
	}
	soundPlayers[p] = struct{}{}
	soundMu.Unlock()

	p.Play()
}
