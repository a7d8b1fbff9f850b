// Package audio turns logical sound ids into synthesised tones and plays
// them through the system audio device.
package audio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/hammamikhairi/ottoclock/internal/domain"
)

// Audio format shared by synthesis and playback: 16-bit signed
// little-endian mono.
const (
	SampleRate     = 44100
	ChannelCount   = 1
	bytesPerSample = 2
)

// Clip is synthesised PCM. A looping clip repeats until stopped.
type Clip struct {
	PCM  []byte
	Loop bool
}

// Duration returns the length of one pass through the clip.
func (c Clip) Duration() time.Duration {
	samples := len(c.PCM) / bytesPerSample / ChannelCount
	return time.Duration(samples) * time.Second / SampleRate
}

// Synthesize renders the tone pattern for a sound id at the given volume
// (0 to 1). Unknown ids fall back to the default alarm.
//
//	alarm-default  800 Hz square beep, 0.3s every 0.5s, looping
//	alarm-gentle   sine rising 400 to 800 Hz over 2s, once
//	alarm-classic  1200 Hz square beep, 0.15s every 0.25s, looping
//	sound-bell     decaying 880 Hz chime every second, looping
func Synthesize(sound string, volume float64) Clip {
	volume = clampVolume(volume)
	switch sound {
	case domain.SoundGentle:
		return Clip{PCM: encode(rise(400, 800, 2*time.Second, volume))}
	case domain.SoundClassic:
		return Clip{PCM: encode(beep(1200, 150*time.Millisecond, 250*time.Millisecond, volume)), Loop: true}
	case domain.SoundBell:
		return Clip{PCM: encode(chime(880, time.Second, volume)), Loop: true}
	default:
		return Clip{PCM: encode(beep(800, 300*time.Millisecond, 500*time.Millisecond, volume)), Loop: true}
	}
}

func clampVolume(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func samplesFor(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}

// beep renders one period: a square tone for on, silence for the rest of
// period. 20ms ramps at both ends avoid clicks.
func beep(freq float64, on, period time.Duration, volume float64) []float64 {
	const gain = 0.35
	out := make([]float64, samplesFor(period))
	onSamples := samplesFor(on)
	ramp := samplesFor(20 * time.Millisecond)

	for i := 0; i < onSamples && i < len(out); i++ {
		env := 1.0
		switch {
		case i < ramp:
			env = float64(i) / float64(ramp)
		case i > onSamples-ramp:
			env = float64(onSamples-i) / float64(ramp)
		}
		v := 1.0
		if math.Sin(2*math.Pi*freq*float64(i)/SampleRate) < 0 {
			v = -1
		}
		out[i] = v * env * gain * volume
	}
	return out
}

// rise renders a sine sweeping linearly from f0 to f1 while the gain
// climbs from 0 to 0.1 at the midpoint and 0.25 at the end.
func rise(f0, f1 float64, d time.Duration, volume float64) []float64 {
	n := samplesFor(d)
	out := make([]float64, n)
	phase := 0.0
	for i := range out {
		frac := float64(i) / float64(n)
		gain := 0.2 * frac
		if frac > 0.5 {
			gain = 0.1 + 0.3*(frac-0.5)
		}
		out[i] = math.Sin(phase) * gain * volume
		phase += 2 * math.Pi * (f0 + (f1-f0)*frac) / SampleRate
	}
	return out
}

// chime renders a struck-bell tone with an octave partial and an
// exponential decay over period.
func chime(freq float64, period time.Duration, volume float64) []float64 {
	const gain = 0.4
	out := make([]float64, samplesFor(period))
	for i := range out {
		t := float64(i) / SampleRate
		v := math.Sin(2*math.Pi*freq*t) + 0.3*math.Sin(2*math.Pi*2*freq*t)
		out[i] = v / 1.3 * math.Exp(-4*t) * gain * volume
	}
	return out
}

// encode converts samples in [-1, 1] to 16-bit little-endian PCM.
func encode(samples []float64) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		binary.LittleEndian.PutUint16(buf[i*bytesPerSample:], uint16(int16(math.Round(s*math.MaxInt16))))
	}
	return buf
}
