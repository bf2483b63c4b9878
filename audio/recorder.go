package audio

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/richinex/murmur/audio/wav"
)

// Recorder captures 16-bit PCM from the default input device.
type Recorder struct {
	sampleRate int
	channels   int

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewRecorder initializes the capture backend.
func NewRecorder(sampleRate, channels int) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	return &Recorder{sampleRate: sampleRate, channels: channels, malgoCtx: ctx}, nil
}

// Start begins capturing, discarding anything captured before.
func (r *Recorder) Start() error {
	if r.device != nil {
		return fmt.Errorf("recorder already started")
	}

	r.mu.Lock()
	r.buf.Reset()
	r.mu.Unlock()

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = uint32(r.channels)
	config.SampleRate = uint32(r.sampleRate)
	config.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(r.malgoCtx.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			r.mu.Lock()
			r.buf.Write(input)
			r.mu.Unlock()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	r.device = device
	return nil
}

// Stop ends the capture and returns the recording as WAV.
func (r *Recorder) Stop() ([]byte, error) {
	if r.device == nil {
		return nil, fmt.Errorf("recorder not started")
	}

	err := r.device.Stop()
	r.device.Uninit()
	r.device = nil
	if err != nil {
		return nil, fmt.Errorf("failed to stop microphone: %w", err)
	}

	r.mu.Lock()
	pcm := append([]byte(nil), r.buf.Bytes()...)
	r.mu.Unlock()

	return wav.Encode(pcm, r.sampleRate, r.channels), nil
}

// Close releases the capture backend.
func (r *Recorder) Close() error {
	if r.device != nil {
		_ = r.device.Stop() // Intentionally ignore - cleanup
		r.device.Uninit()
		r.device = nil
	}
	if r.malgoCtx != nil {
		_ = r.malgoCtx.Uninit() // Intentionally ignore - cleanup
		r.malgoCtx.Free()
		r.malgoCtx = nil
	}
	return nil
}
