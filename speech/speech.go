package speech

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// Synthesizer converts one sentence to playable audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber converts recorded audio to text. filename carries the
// container format (for example "input.wav") to the service.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// TranscribeFile transcribes an audio file on disk.
func TranscribeFile(ctx context.Context, t Transcriber, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return t.Transcribe(ctx, f, filepath.Base(path))
}
