// Package audio plays synthesized speech and captures microphone input.
//
// Information Hiding:
// - Audio device setup (oto for playback, malgo for capture)
// - Format checks between decoded WAV and the open device
package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/richinex/murmur/audio/wav"
)

const playbackPoll = 10 * time.Millisecond

// Player plays WAV or raw 16-bit PCM chunks through the default output
// device, one at a time. The device is opened on first use.
type Player struct {
	sampleRate int
	channels   int

	once    sync.Once
	otoCtx  *oto.Context
	initErr error

	mu sync.Mutex
}

// NewPlayer creates a player for the given output format.
func NewPlayer(sampleRate, channels int) *Player {
	return &Player{sampleRate: sampleRate, channels: channels}
}

func (p *Player) context() (*oto.Context, error) {
	p.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   p.sampleRate,
			ChannelCount: p.channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			p.initErr = fmt.Errorf("failed to open audio output: %w", err)
			return
		}
		<-ready
		p.otoCtx = ctx
	})
	return p.otoCtx, p.initErr
}

// pcm extracts playable samples, checking WAV headers against the device format.
func (p *Player) pcm(audio []byte) ([]byte, error) {
	if !wav.HasHeader(audio) {
		return audio, nil
	}

	format, samples, err := wav.Decode(audio)
	if err != nil {
		return nil, err
	}
	if format.SampleRate != p.sampleRate || format.Channels != p.channels || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("audio is %d Hz, %d channel(s), %d-bit; player expects %d Hz, %d channel(s), 16-bit",
			format.SampleRate, format.Channels, format.BitsPerSample, p.sampleRate, p.channels)
	}
	return samples, nil
}

// Play blocks until the chunk finished playing or ctx is done.
func (p *Player) Play(ctx context.Context, audio []byte) error {
	samples, err := p.pcm(audio)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	otoCtx, err := p.context()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	player := otoCtx.NewPlayer(bytes.NewReader(samples))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
