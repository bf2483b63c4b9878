package audio

import (
	"bytes"
	"testing"

	"github.com/richinex/murmur/audio/wav"
)

func TestPlayerPCMChecksFormat(t *testing.T) {
	p := NewPlayer(32000, 1)

	samples, err := p.pcm(wav.Encode([]byte{5, 6}, 32000, 1))
	if err != nil || !bytes.Equal(samples, []byte{5, 6}) {
		t.Errorf("pcm = %v, %v", samples, err)
	}

	if _, err := p.pcm(wav.Encode([]byte{5, 6}, 16000, 1)); err == nil {
		t.Error("expected sample rate mismatch error")
	}

	raw := []byte{7, 8, 9, 10}
	if samples, err := p.pcm(raw); err != nil || !bytes.Equal(samples, raw) {
		t.Errorf("raw pcm = %v, %v", samples, err)
	}
}
