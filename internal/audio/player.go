package audio

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.SoundPlayer = (*Player)(nil)
	_ domain.SoundPlayer = (*Silent)(nil)
)

// Player plays synthesised tones via oto. Play returns immediately; a new
// Play replaces whatever is sounding.
type Player struct {
	ctx    *oto.Context
	log    *logger.Logger
	volume float64

	mu     sync.Mutex
	active *oto.Player // nil when idle
	clips  map[string]Clip
}

// NewPlayer initialises the system audio context. Returns an error if the
// audio device is unavailable.
func NewPlayer(volume float64, log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d, volume=%.2f)", SampleRate, ChannelCount, volume)
	return &Player{ctx: ctx, log: log, volume: clampVolume(volume), clips: make(map[string]Clip)}, nil
}

// Play starts the tone for sound. Looping sounds continue until Stop.
func (p *Player) Play(sound string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	clip, ok := p.clips[sound]
	if !ok {
		clip = Synthesize(sound, p.volume)
		p.clips[sound] = clip
	}

	var src io.Reader = bytes.NewReader(clip.PCM)
	if clip.Loop {
		src = &loopReader{data: clip.PCM}
	}

	p.active = p.ctx.NewPlayer(src)
	p.active.Play()
	p.log.Debug("playing %s (loop=%v, %s per pass)", sound, clip.Loop, clip.Duration())
	return nil
}

// SetVolume changes the output level (clamped to 0..1). Cached clips were
// rendered at the old level, so they are dropped; a sound already playing
// keeps its level until the next Play.
func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(volume)
	clear(p.clips)
	p.log.Debug("volume set to %.2f", p.volume)
}

// Stop silences the current sound, if any. Safe to call when idle.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.active == nil {
		return
	}
	p.active.Pause()
	if err := p.active.Close(); err != nil {
		p.log.Warn("closing audio player: %v", err)
	}
	p.active = nil
	p.log.Debug("audio stopped")
}

// loopReader repeats data forever.
type loopReader struct {
	data []byte
	pos  int
}

func (r *loopReader) Read(b []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(b) {
		c := copy(b[n:], r.data[r.pos:])
		n += c
		r.pos = (r.pos + c) % len(r.data)
	}
	return n, nil
}

// Silent is a SoundPlayer that only logs. Used when sound is disabled or
// no audio device is available.
type Silent struct {
	log *logger.Logger
}

// NewSilent creates a silent player.
func NewSilent(log *logger.Logger) *Silent {
	return &Silent{log: log}
}

// Play logs the sound it would have played.
func (s *Silent) Play(sound string) error {
	s.log.Debug("silent player: would play %s", sound)
	return nil
}

// Stop does nothing.
func (s *Silent) Stop() {}

// SetVolume logs the new level.
func (s *Silent) SetVolume(volume float64) {
	s.log.Debug("silent player: volume %.2f", volume)
}
